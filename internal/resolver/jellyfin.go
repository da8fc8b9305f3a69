package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jo-hoe/gosubgen/internal/common"
	"github.com/jo-hoe/gosubgen/internal/media"
)

// Jellyfin resolves item IDs. The API has no user-independent item lookup, so
// the first user returned by /Users is used for the item query; on multi-user
// installs that user must be able to see the library.
type Jellyfin struct {
	baseURL string
	token   string
	client  HTTPDoer
}

var _ Resolver = (*Jellyfin)(nil)

// NewJellyfin creates a Jellyfin resolver. A nil client selects a default http.Client.
func NewJellyfin(baseURL, token string, client HTTPDoer) *Jellyfin {
	if client == nil {
		client = newHTTPClient()
	}
	return &Jellyfin{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (j *Jellyfin) Provider() media.Provider { return media.ProviderJellyfin }

type jellyfinUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type jellyfinItem struct {
	ID   string `json:"Id"`
	Path string `json:"Path"`
}

func (j *Jellyfin) Resolve(ctx context.Context, ev media.Event) (string, error) {
	itemID := strings.TrimSpace(ev.Identifier)
	if itemID == "" {
		return "", resolutionError(ev, errors.New("missing item id"))
	}
	headers := map[string]string{
		common.HeaderAuthorization: "MediaBrowser Token=" + j.token,
		"Accept":                   common.ContentTypeJSON,
	}

	body, err := get(ctx, j.client, j.baseURL+"/Users", headers)
	if err != nil {
		return "", resolutionError(ev, fmt.Errorf("jellyfin users: %w", err))
	}
	var users []jellyfinUser
	if err := json.Unmarshal(body, &users); err != nil {
		return "", resolutionError(ev, fmt.Errorf("parse jellyfin users: %w", err))
	}
	if len(users) == 0 || users[0].ID == "" {
		return "", resolutionError(ev, errors.New("jellyfin returned no users"))
	}

	itemURL := fmt.Sprintf("%s/Users/%s/Items/%s", j.baseURL, url.PathEscape(users[0].ID), url.PathEscape(itemID))
	body, err = get(ctx, j.client, itemURL, headers)
	if err != nil {
		return "", resolutionError(ev, fmt.Errorf("jellyfin item: %w", err))
	}
	var item jellyfinItem
	if err := json.Unmarshal(body, &item); err != nil {
		return "", resolutionError(ev, fmt.Errorf("parse jellyfin item: %w", err))
	}
	if strings.TrimSpace(item.Path) == "" {
		return "", resolutionError(ev, errors.New("jellyfin item has no Path"))
	}
	return item.Path, nil
}
