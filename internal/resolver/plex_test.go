package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jo-hoe/gosubgen/internal/media"
)

const plexMetadataXML = `<?xml version="1.0" encoding="UTF-8"?>
<MediaContainer size="1">
  <Video ratingKey="1234" title="Pilot">
    <Media id="1" duration="1000">
      <Part id="10" file="/tv/show/ep1.mkv" size="123"/>
      <Part id="11" file="/tv/show/ep1-part2.mkv"/>
    </Media>
  </Video>
</MediaContainer>`

func TestPlex_Resolve_Success(t *testing.T) {
	var seenToken, seenPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenToken = r.Header.Get("X-Plex-Token")
		seenPath = r.URL.Path
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(plexMetadataXML))
	}))
	defer ts.Close()

	p := NewPlex(ts.URL+"/", "tok", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	path, err := p.Resolve(ctx, media.Event{Provider: media.ProviderPlex, Kind: media.KindAdded, Identifier: "1234"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/tv/show/ep1.mkv" {
		t.Fatalf("path = %q", path)
	}
	if seenToken != "tok" {
		t.Fatalf("token header = %q", seenToken)
	}
	if seenPath != "/library/metadata/1234" {
		t.Fatalf("request path = %q", seenPath)
	}
}

func TestPlex_Resolve_Non200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := NewPlex(ts.URL, "bad", nil).Resolve(context.Background(), media.Event{Provider: media.ProviderPlex, Identifier: "1"})
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if rerr.Provider != media.ProviderPlex || rerr.Identifier != "1" {
		t.Fatalf("unexpected error fields: %+v", rerr)
	}
}

func TestPlex_Resolve_MissingPart(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<MediaContainer><Video ratingKey="1"/></MediaContainer>`))
	}))
	defer ts.Close()

	_, err := NewPlex(ts.URL, "tok", nil).Resolve(context.Background(), media.Event{Provider: media.ProviderPlex, Identifier: "1"})
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
}

func TestFirstPartFile(t *testing.T) {
	if _, err := firstPartFile([]byte(`<MediaContainer><Part id="1"/></MediaContainer>`)); err == nil {
		t.Fatalf("expected error for Part without file")
	}
	if _, err := firstPartFile([]byte(`<MediaContainer><Part`)); err == nil {
		t.Fatalf("expected error for truncated xml")
	}
	got, err := firstPartFile([]byte(`<A><B><C><Part file="/x.mkv"/></C></B></A>`))
	if err != nil || got != "/x.mkv" {
		t.Fatalf("firstPartFile = %q, %v", got, err)
	}
}
