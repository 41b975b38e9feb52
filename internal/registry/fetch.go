package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultFetchTimeout bounds one template download.
	DefaultFetchTimeout = 30 * time.Second

	maxTemplateSize = 1 << 20
)

// Fetcher downloads raw template content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %s fetching %s", e.Status, e.URL)
}

// HTTPFetcher fetches templates over HTTP(S), following redirects.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPFetcher returns an HTTPFetcher using http.DefaultClient.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: http.DefaultClient, Timeout: DefaultFetchTimeout}
}

// Fetch downloads url. Bodies larger than 1 MiB are rejected.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", url, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTemplateSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if len(data) > maxTemplateSize {
		return nil, fmt.Errorf("template at %s exceeds %d bytes", url, maxTemplateSize)
	}
	return data, nil
}

// Manager downloads templates into a Registry.
type Manager struct {
	reg     *Registry
	fetcher Fetcher
	logger  *slog.Logger
}

// NewManager creates a Manager.
func NewManager(reg *Registry, fetcher Fetcher, logger *slog.Logger) *Manager {
	return &Manager{reg: reg, fetcher: fetcher, logger: logger}
}

// Add downloads the template at url and registers it. The name defaults to
// the slug of the template's own name. An existing template is only replaced
// when overwrite is set; otherwise ErrExists is returned.
func (m *Manager) Add(ctx context.Context, url, name string, overwrite bool) (string, Meta, error) {
	m.logger.Info("fetching template", "url", url)
	content, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", Meta{}, err
	}

	meta, err := ParseMeta(content)
	if err != nil {
		return "", Meta{}, err
	}
	if name == "" {
		name = meta.Slug()
	}
	if err := ValidateName(name); err != nil {
		return "", Meta{}, err
	}

	exists, err := m.reg.Exists(name)
	if err != nil {
		return "", Meta{}, err
	}
	if exists && !overwrite {
		return name, meta, fmt.Errorf("%w: %s", ErrExists, name)
	}

	if err := m.reg.SaveTemplate(name, content); err != nil {
		return "", Meta{}, err
	}
	if err := m.reg.Register(name, url); err != nil {
		return "", Meta{}, err
	}
	m.logger.Info("template registered", "name", name, "version", meta.Version)
	return name, meta, nil
}

// Update re-downloads template name from its recorded source URL.
func (m *Manager) Update(ctx context.Context, name string) (Meta, error) {
	if name == BuiltinTemplate {
		return Meta{}, ErrReserved
	}
	url, err := m.reg.SourceURL(name)
	if err != nil {
		return Meta{}, err
	}
	if url == "" {
		return Meta{}, fmt.Errorf("template %q has no source URL; add it again with 'aftr template add <url>'", name)
	}

	m.logger.Info("updating template", "name", name, "url", url)
	content, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		return Meta{}, err
	}
	meta, err := ParseMeta(content)
	if err != nil {
		return Meta{}, err
	}
	if err := m.reg.SaveTemplate(name, content); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// Info describes a registered template for listing.
type Info struct {
	Name      string
	Meta      Meta
	SourceURL string
	Err       error
}

// List returns every registered template with its parsed header. A template
// whose file cannot be parsed is listed with Err set.
func (m *Manager) List() ([]Info, error) {
	names, err := m.reg.Names()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		info := Info{Name: name}
		if info.SourceURL, err = m.reg.SourceURL(name); err != nil && !errors.Is(err, ErrNotRegistered) {
			return nil, err
		}
		content, err := m.reg.ReadTemplate(name)
		if err == nil {
			info.Meta, err = ParseMeta(content)
		}
		if err != nil {
			m.logger.Warn("failed to read template", "name", name, "error", err)
			info.Err = err
		}
		if info.SourceURL == "" {
			info.SourceURL = info.Meta.SourceURL
		}
		infos = append(infos, info)
	}
	return infos, nil
}
