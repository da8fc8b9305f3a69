package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jo-hoe/gosubgen/internal/common"
	"github.com/jo-hoe/gosubgen/internal/dispatch"
	"github.com/jo-hoe/gosubgen/internal/media"
)

// rejection explains why a webhook never reached the dispatcher.
type rejection struct {
	status     dispatch.Status
	reason     string
	logMessage string
	detail     string
	quiet      bool // routine, logged at debug
}

type decoder func(r *http.Request) (media.Event, *rejection)

func wrongSender(provider string) *rejection {
	return &rejection{
		status:     dispatch.StatusIgnored,
		reason:     "not a " + provider + " webhook",
		logMessage: "this doesn't appear to be a properly configured " + provider + " webhook",
	}
}

func malformed(err error) *rejection {
	return &rejection{
		status:     dispatch.StatusError,
		reason:     "malformed payload",
		logMessage: "could not decode webhook payload",
		detail:     err.Error(),
	}
}

func unsupported(event string) *rejection {
	return &rejection{
		status:     dispatch.StatusIgnored,
		reason:     "unsupported event",
		logMessage: "ignoring webhook event",
		detail:     event,
		quiet:      true,
	}
}

var (
	tautulliKinds = map[string]media.Kind{"added": media.KindAdded, "played": media.KindPlayed}
	plexKinds     = map[string]media.Kind{"library.new": media.KindAdded, "media.play": media.KindPlayed}
	jellyfinKinds = map[string]media.Kind{"ItemAdded": media.KindAdded, "PlaybackStart": media.KindPlayed}
)

type tautulliPayload struct {
	Event string `json:"event"`
	File  string `json:"file"`
}

func decodeTautulli(r *http.Request) (media.Event, *rejection) {
	if r.Header.Get(common.HeaderSource) != common.SourceTautulli {
		return media.Event{}, wrongSender("Tautulli")
	}
	var p tautulliPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return media.Event{}, malformed(err)
	}
	kind, ok := tautulliKinds[p.Event]
	if !ok {
		return media.Event{}, unsupported(p.Event)
	}
	return media.Event{Provider: media.ProviderTautulli, Kind: kind, Identifier: p.File}, nil
}

type plexPayload struct {
	Event    string `json:"event"`
	Metadata struct {
		RatingKey string `json:"ratingKey"`
	} `json:"Metadata"`
}

func decodePlex(r *http.Request) (media.Event, *rejection) {
	if !strings.Contains(r.Header.Get(common.HeaderUserAgent), common.UserAgentPlex) {
		return media.Event{}, wrongSender("Plex")
	}
	var p plexPayload
	if err := json.Unmarshal([]byte(r.FormValue(common.PlexPayloadFormField)), &p); err != nil {
		return media.Event{}, malformed(err)
	}
	kind, ok := plexKinds[p.Event]
	if !ok {
		return media.Event{}, unsupported(p.Event)
	}
	return media.Event{Provider: media.ProviderPlex, Kind: kind, Identifier: p.Metadata.RatingKey}, nil
}

type jellyfinPayload struct {
	NotificationType string `json:"NotificationType"`
	ItemID           string `json:"ItemId"`
}

func decodeJellyfin(r *http.Request) (media.Event, *rejection) {
	if !strings.Contains(r.Header.Get(common.HeaderUserAgent), common.UserAgentJellyfin) {
		return media.Event{}, wrongSender("Jellyfin")
	}
	var p jellyfinPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return media.Event{}, malformed(err)
	}
	kind, ok := jellyfinKinds[p.NotificationType]
	if !ok {
		return media.Event{}, unsupported(p.NotificationType)
	}
	return media.Event{Provider: media.ProviderJellyfin, Kind: kind, Identifier: p.ItemID}, nil
}
