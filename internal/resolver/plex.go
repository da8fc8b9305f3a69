package resolver

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/jo-hoe/gosubgen/internal/common"
	"github.com/jo-hoe/gosubgen/internal/media"
)

// Plex resolves rating keys through the server's metadata endpoint.
type Plex struct {
	baseURL string
	token   string
	client  HTTPDoer
}

var _ Resolver = (*Plex)(nil)

// NewPlex creates a Plex resolver. A nil client selects a default http.Client.
func NewPlex(baseURL, token string, client HTTPDoer) *Plex {
	if client == nil {
		client = newHTTPClient()
	}
	return &Plex{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (p *Plex) Provider() media.Provider { return media.ProviderPlex }

// Resolve fetches /library/metadata/{ratingKey} and returns the file attribute
// of the first Part element in the response.
func (p *Plex) Resolve(ctx context.Context, ev media.Event) (string, error) {
	key := strings.TrimSpace(ev.Identifier)
	if key == "" {
		return "", resolutionError(ev, errors.New("missing rating key"))
	}
	endpoint := p.baseURL + "/library/metadata/" + url.PathEscape(key)
	body, err := get(ctx, p.client, endpoint, map[string]string{
		common.HeaderPlexToken: p.token,
		"Accept":               "application/xml",
	})
	if err != nil {
		return "", resolutionError(ev, fmt.Errorf("plex metadata: %w", err))
	}
	file, err := firstPartFile(body)
	if err != nil {
		return "", resolutionError(ev, err)
	}
	return file, nil
}

// firstPartFile walks the MediaContainer document and returns the file
// attribute of the first Part element at any depth.
func firstPartFile(doc []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", errors.New("plex metadata: no Part element in response")
		}
		if err != nil {
			return "", fmt.Errorf("decode plex metadata: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Part" {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "file" && strings.TrimSpace(attr.Value) != "" {
				return attr.Value, nil
			}
		}
		return "", errors.New("plex metadata: first Part has no file attribute")
	}
}
