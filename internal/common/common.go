package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey        = "X-API-Key" // #nosec G101 - header name constant, not a credential
	HeaderSource        = "Source"
	HeaderUserAgent     = "User-Agent"
	HeaderPlexToken     = "X-Plex-Token" // #nosec G101 - header name constant, not a credential
	HeaderAuthorization = "Authorization"
	ContentTypeJSON     = "application/json"
)

// Webhook sender fingerprints
const (
	SourceTautulli       = "Tautulli"
	UserAgentPlex        = "PlexMediaServer"
	UserAgentJellyfin    = "Jellyfin-Server"
	PlexPayloadFormField = "payload"
)

// API paths
const (
	PathHealthz  = "/healthz"
	PathMetrics  = "/metrics"
	PathJobs     = "/v1/jobs"
	PathTautulli = "/tautulli"
	PathPlex     = "/plex"
	PathJellyfin = "/jellyfin"
	PathLegacy   = "/webhook"
)

// Defaults and limits
const (
	DefaultQueueCapacity = 128
	DefaultWorkerCount   = 2
	SQLiteBusyTimeoutMS  = 5000
	DefaultHistoryLimit  = 50
)

// Subtitle artifact naming
const (
	ArtifactMarker    = "subgen"
	ArtifactExtension = ".srt"
)

// Files under the data directory
const (
	DatabaseFileName = "gosubgen.db"
	LockFileName     = "gosubgen.lock"
	ScratchDirName   = "scratch"
)

// Callback status strings
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDropped   = "dropped" // metrics only; history records these as failed
)
