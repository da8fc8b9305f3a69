package common

import "testing"

func TestConstantsValues(t *testing.T) {
	if ContentTypeJSON != "application/json" {
		t.Fatalf("ContentTypeJSON = %q", ContentTypeJSON)
	}
	if HeaderAPIKey != "X-API-Key" {
		t.Fatalf("HeaderAPIKey = %q", HeaderAPIKey)
	}
	if HeaderPlexToken != "X-Plex-Token" {
		t.Fatalf("HeaderPlexToken = %q", HeaderPlexToken)
	}
	if PathTautulli != "/tautulli" || PathPlex != "/plex" || PathJellyfin != "/jellyfin" {
		t.Fatalf("webhook paths mismatch: %q, %q, %q", PathTautulli, PathPlex, PathJellyfin)
	}
	if PathHealthz != "/healthz" || PathJobs != "/v1/jobs" {
		t.Fatalf("paths mismatch: %q, %q", PathHealthz, PathJobs)
	}
	if DefaultQueueCapacity <= 0 || DefaultWorkerCount <= 0 {
		t.Fatalf("defaults should be positive")
	}
	if ArtifactMarker != "subgen" || ArtifactExtension != ".srt" {
		t.Fatalf("artifact naming mismatch")
	}
	if StatusCompleted != "completed" || StatusFailed != "failed" {
		t.Fatalf("status constants mismatch")
	}
}
