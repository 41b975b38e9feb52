package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configDir = "/home/user/.config/aftr"

const sampleTemplate = `[template]
name = "Data Science"
description = "Notebook-first layout"
version = "2.1.0"

[project]
requires-python = ">=3.11"
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	content map[string]string
	err     error
	calls   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.content[url]
	if !ok {
		return nil, &StatusError{URL: url, StatusCode: 404, Status: "404 Not Found"}
	}
	return []byte(c), nil
}

func newTestRegistry(t *testing.T) (*Registry, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	return New(fsys, configDir), fsys
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	reg, fsys := newTestRegistry(t)

	require.NoError(t, reg.Register("ds", "https://example.com/ds.toml"))
	require.NoError(t, reg.Register("plain", ""))

	url, err := reg.SourceURL("ds")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/ds.toml", url)

	raw, err := afero.ReadFile(fsys, reg.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[templates.ds]")
	assert.Contains(t, string(raw), `source_url = "https://example.com/ds.toml"`)

	require.NoError(t, reg.Unregister("ds"))
	_, err = reg.SourceURL("ds")
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.ErrorIs(t, reg.Unregister("ds"), ErrNotRegistered)
}

func TestRegistry_RegisterRejectsReservedName(t *testing.T) {
	reg, _ := newTestRegistry(t)
	assert.ErrorIs(t, reg.Register("default", "x"), ErrReserved)
}

func TestRegistry_NamesOnlyListsExistingFiles(t *testing.T) {
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.Register("zeta", ""))
	require.NoError(t, reg.Register("alpha", ""))
	require.NoError(t, reg.Register("ghost", ""))
	require.NoError(t, reg.SaveTemplate("zeta", []byte(sampleTemplate)))
	require.NoError(t, reg.SaveTemplate("alpha", []byte(sampleTemplate)))

	names, err := reg.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestRegistry_MalformedFile(t *testing.T) {
	reg, fsys := newTestRegistry(t)
	require.NoError(t, afero.WriteFile(fsys, reg.Path(), []byte("[templates"), 0644))

	_, err := reg.Names()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry.toml")
}

func TestRegistry_Remove(t *testing.T) {
	reg, fsys := newTestRegistry(t)

	require.NoError(t, reg.SaveTemplate("ds", []byte(sampleTemplate)))
	require.NoError(t, reg.Register("ds", "u"))

	require.NoError(t, reg.Remove("ds"))

	exists, err := afero.Exists(fsys, reg.TemplatePath("ds"))
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = reg.SourceURL("ds")
	assert.ErrorIs(t, err, ErrNotRegistered)

	assert.ErrorIs(t, reg.Remove("ds"), ErrNotRegistered)
	assert.ErrorIs(t, reg.Remove("default"), ErrReserved)
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"data-science", false},
		{"", true},
		{"default", true},
		{"../escape", true},
		{"a/b", true},
		{".hidden", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseMeta(t *testing.T) {
	meta, err := ParseMeta([]byte(sampleTemplate))
	require.NoError(t, err)
	assert.Equal(t, Meta{Name: "Data Science", Description: "Notebook-first layout", Version: "2.1.0"}, meta)
	assert.Equal(t, "data-science", meta.Slug())

	meta, err = ParseMeta([]byte("[project]\nname = \"x\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "unnamed", meta.Name)
	assert.Equal(t, "1.0.0", meta.Version)

	_, err = ParseMeta([]byte("this is not = = toml"))
	assert.Error(t, err)
}

func TestManager_Add(t *testing.T) {
	reg, _ := newTestRegistry(t)
	f := &fakeFetcher{content: map[string]string{"https://example.com/ds.toml": sampleTemplate}}
	m := NewManager(reg, f, testLogger())

	name, meta, err := m.Add(context.Background(), "https://example.com/ds.toml", "", false)
	require.NoError(t, err)
	assert.Equal(t, "data-science", name)
	assert.Equal(t, "2.1.0", meta.Version)

	content, err := reg.ReadTemplate("data-science")
	require.NoError(t, err)
	assert.Equal(t, sampleTemplate, string(content))

	url, err := reg.SourceURL("data-science")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/ds.toml", url)

	_, _, err = m.Add(context.Background(), "https://example.com/ds.toml", "", false)
	assert.ErrorIs(t, err, ErrExists)

	_, _, err = m.Add(context.Background(), "https://example.com/ds.toml", "", true)
	assert.NoError(t, err)
}

func TestManager_AddCustomName(t *testing.T) {
	reg, _ := newTestRegistry(t)
	f := &fakeFetcher{content: map[string]string{"u": sampleTemplate}}
	m := NewManager(reg, f, testLogger())

	name, _, err := m.Add(context.Background(), "u", "mine", false)
	require.NoError(t, err)
	assert.Equal(t, "mine", name)

	_, _, err = m.Add(context.Background(), "u", "default", false)
	assert.ErrorIs(t, err, ErrReserved)
}

func TestManager_AddFailures(t *testing.T) {
	reg, fsys := newTestRegistry(t)

	t.Run("fetch error", func(t *testing.T) {
		m := NewManager(reg, &fakeFetcher{}, testLogger())
		_, _, err := m.Add(context.Background(), "https://example.com/missing.toml", "", false)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 404, se.StatusCode)
	})

	t.Run("invalid toml", func(t *testing.T) {
		m := NewManager(reg, &fakeFetcher{content: map[string]string{"u": "[[["}}, testLogger())
		_, _, err := m.Add(context.Background(), "u", "", false)
		assert.ErrorContains(t, err, "invalid template format")
	})

	exists, err := afero.Exists(fsys, reg.Path())
	require.NoError(t, err)
	assert.False(t, exists, "failed adds must not touch the registry")
}

func TestManager_Update(t *testing.T) {
	reg, _ := newTestRegistry(t)
	f := &fakeFetcher{content: map[string]string{"u": sampleTemplate}}
	m := NewManager(reg, f, testLogger())

	_, _, err := m.Add(context.Background(), "u", "ds", false)
	require.NoError(t, err)

	f.content["u"] = strings.Replace(sampleTemplate, "2.1.0", "2.2.0", 1)
	meta, err := m.Update(context.Background(), "ds")
	require.NoError(t, err)
	assert.Equal(t, "2.2.0", meta.Version)

	content, err := reg.ReadTemplate("ds")
	require.NoError(t, err)
	assert.Contains(t, string(content), "2.2.0")

	_, err = m.Update(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotRegistered)
	_, err = m.Update(context.Background(), "default")
	assert.ErrorIs(t, err, ErrReserved)

	require.NoError(t, reg.Register("local", ""))
	_, err = m.Update(context.Background(), "local")
	assert.ErrorContains(t, err, "has no source URL")
}

func TestManager_UpdateKeepsOldContentOnError(t *testing.T) {
	reg, _ := newTestRegistry(t)
	f := &fakeFetcher{content: map[string]string{"u": sampleTemplate}}
	m := NewManager(reg, f, testLogger())

	_, _, err := m.Add(context.Background(), "u", "ds", false)
	require.NoError(t, err)

	f.err = errors.New("connection refused")
	_, err = m.Update(context.Background(), "ds")
	require.Error(t, err)

	content, err := reg.ReadTemplate("ds")
	require.NoError(t, err)
	assert.Equal(t, sampleTemplate, string(content))
}

func TestManager_List(t *testing.T) {
	reg, _ := newTestRegistry(t)
	m := NewManager(reg, &fakeFetcher{}, testLogger())

	require.NoError(t, reg.SaveTemplate("ds", []byte(sampleTemplate)))
	require.NoError(t, reg.Register("ds", "https://example.com/ds.toml"))
	require.NoError(t, reg.SaveTemplate("broken", []byte("[[[")))
	require.NoError(t, reg.Register("broken", ""))

	infos, err := m.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, "broken", infos[0].Name)
	assert.Error(t, infos[0].Err)

	assert.Equal(t, "ds", infos[1].Name)
	assert.NoError(t, infos[1].Err)
	assert.Equal(t, "Data Science", infos[1].Meta.Name)
	assert.Equal(t, "https://example.com/ds.toml", infos[1].SourceURL)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.toml":
			_, _ = fmt.Fprint(w, sampleTemplate)
		case "/moved.toml":
			http.Redirect(w, r, "/ok.toml", http.StatusFound)
		case "/big.toml":
			_, _ = w.Write([]byte(strings.Repeat("x", maxTemplateSize+1)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client(), Timeout: DefaultFetchTimeout}
	ctx := context.Background()

	data, err := f.Fetch(ctx, srv.URL+"/ok.toml")
	require.NoError(t, err)
	assert.Equal(t, sampleTemplate, string(data))

	data, err = f.Fetch(ctx, srv.URL+"/moved.toml")
	require.NoError(t, err)
	assert.Equal(t, sampleTemplate, string(data))

	_, err = f.Fetch(ctx, srv.URL+"/missing.toml")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	_, err = f.Fetch(ctx, srv.URL+"/big.toml")
	assert.ErrorContains(t, err, "exceeds")

	_, err = f.Fetch(ctx, "://bad")
	assert.Error(t, err)
}
