// Package media holds the provider-neutral view of a webhook notification
// and the server-to-local path rewrite applied before admission.
package media

import "fmt"

// Provider identifies the media server that sent a notification.
type Provider string

const (
	ProviderPlex     Provider = "plex"
	ProviderJellyfin Provider = "jellyfin"
	ProviderTautulli Provider = "tautulli"
)

// Kind is the normalized notification type.
type Kind string

const (
	KindAdded  Kind = "added"
	KindPlayed Kind = "played"
)

// Event is a normalized webhook notification. Identifier is a Plex rating key,
// a Jellyfin item ID, or for Tautulli the file path itself.
type Event struct {
	Provider   Provider
	Kind       Kind
	Identifier string
}

func (e Event) String() string {
	return fmt.Sprintf("%s/%s/%s", e.Provider, e.Kind, e.Identifier)
}
