// Package resolver turns a normalized webhook event into the absolute path of
// the media file it refers to.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jo-hoe/gosubgen/internal/media"
)

// Resolver maps an event from one provider to a file path on the media server.
type Resolver interface {
	Provider() media.Provider
	Resolve(ctx context.Context, ev media.Event) (string, error)
}

// ResolutionError reports that a provider could not produce a path, either
// because the upstream API failed or because its response lacked the field.
type ResolutionError struct {
	Provider   media.Provider
	Identifier string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s item %q: %v", e.Provider, e.Identifier, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func resolutionError(ev media.Event, err error) error {
	return &ResolutionError{Provider: ev.Provider, Identifier: ev.Identifier, Err: err}
}

var (
	// ErrProviderNotConfigured is returned by the Registry for providers without a resolver.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrRelativePath is returned when a provider reports a path that is not absolute.
	ErrRelativePath = errors.New("path is not absolute")
)

// isAbsolute accepts local absolute paths and Windows drive or UNC paths,
// which a media server on another host may report before path mapping.
func isAbsolute(p string) bool {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\\`) {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/') &&
		(('a' <= p[0] && p[0] <= 'z') || ('A' <= p[0] && p[0] <= 'Z'))
}

func checkAbsolute(ev media.Event, p string) (string, error) {
	if !isAbsolute(p) {
		return "", resolutionError(ev, fmt.Errorf("%w: %q", ErrRelativePath, p))
	}
	return p, nil
}

// Registry holds initialized resolvers by provider.
type Registry struct {
	byProvider map[media.Provider]Resolver
}

func NewRegistry() *Registry {
	return &Registry{byProvider: make(map[media.Provider]Resolver)}
}

func (r *Registry) Add(res Resolver) {
	r.byProvider[res.Provider()] = res
}

func (r *Registry) Get(p media.Provider) (Resolver, bool) {
	res, ok := r.byProvider[p]
	return res, ok
}

func (r *Registry) Providers() []media.Provider {
	out := make([]media.Provider, 0, len(r.byProvider))
	for k := range r.byProvider {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve dispatches to the resolver registered for the event's provider.
func (r *Registry) Resolve(ctx context.Context, ev media.Event) (string, error) {
	res, ok := r.Get(ev.Provider)
	if !ok {
		return "", resolutionError(ev, ErrProviderNotConfigured)
	}
	p, err := res.Resolve(ctx, ev)
	if err != nil {
		return "", err
	}
	return checkAbsolute(ev, p)
}

// Tautulli payloads already carry the file path.
type Tautulli struct{}

var _ Resolver = Tautulli{}

func (Tautulli) Provider() media.Provider { return media.ProviderTautulli }

func (Tautulli) Resolve(_ context.Context, ev media.Event) (string, error) {
	p := strings.TrimSpace(ev.Identifier)
	if p == "" {
		return "", resolutionError(ev, errors.New("payload has no file path"))
	}
	return checkAbsolute(ev, p)
}
