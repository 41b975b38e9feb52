// Package registry manages user project templates: a registry.toml mapping
// template names to the URL they were downloaded from, and the downloaded
// template files under templates/.
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/aftr-cli/aftr/internal/fsutil"
)

const (
	// RegistryFile is the registry file name inside the config directory.
	RegistryFile = "registry.toml"
	// TemplatesDir holds one <name>.toml file per registered template.
	TemplatesDir = "templates"
	// BuiltinTemplate is reserved for the template shipped with aftr.
	BuiltinTemplate = "default"
)

var (
	// ErrNotRegistered is returned for a template name with no registry entry
	// or template file.
	ErrNotRegistered = errors.New("template not registered")
	// ErrReserved is returned when an operation targets the built-in template.
	ErrReserved = errors.New("the built-in 'default' template cannot be modified")
	// ErrExists is returned when adding a template whose file already exists.
	ErrExists = errors.New("template already exists")
)

// Entry is the registry record of one template.
type Entry struct {
	SourceURL string `toml:"source_url"`
}

type registryFile struct {
	Templates map[string]Entry `toml:"templates"`
}

// Registry reads and writes the registry and template files under dir.
type Registry struct {
	fs  afero.Fs
	dir string
}

// New returns a Registry rooted at the aftr config directory dir.
func New(fsys afero.Fs, dir string) *Registry {
	return &Registry{fs: fsys, dir: dir}
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return filepath.Join(r.dir, RegistryFile)
}

// TemplatePath returns the file path of template name. The file may not exist.
func (r *Registry) TemplatePath(name string) string {
	return filepath.Join(r.dir, TemplatesDir, name+".toml")
}

func (r *Registry) load() (*registryFile, error) {
	reg := &registryFile{Templates: make(map[string]Entry)}

	data, err := afero.ReadFile(r.fs, r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", r.Path(), err)
	}
	if err := toml.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", r.Path(), err)
	}
	if reg.Templates == nil {
		reg.Templates = make(map[string]Entry)
	}
	return reg, nil
}

func (r *Registry) save(reg *registryFile) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(reg); err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	if err := fsutil.WriteFileAtomic(r.fs, r.Path(), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", r.Path(), err)
	}
	return nil
}

// Register records name with the URL it was fetched from, replacing any
// previous entry.
func (r *Registry) Register(name, sourceURL string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	reg, err := r.load()
	if err != nil {
		return err
	}
	reg.Templates[name] = Entry{SourceURL: sourceURL}
	return r.save(reg)
}

// Unregister drops the registry entry of name.
func (r *Registry) Unregister(name string) error {
	reg, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := reg.Templates[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	delete(reg.Templates, name)
	return r.save(reg)
}

// Names returns the registered templates whose file exists, sorted by name.
func (r *Registry) Names() ([]string, error) {
	reg, err := r.load()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(reg.Templates))
	for name := range reg.Templates {
		ok, err := r.Exists(name)
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// SourceURL returns the recorded source URL of name, which may be empty.
func (r *Registry) SourceURL(name string) (string, error) {
	reg, err := r.load()
	if err != nil {
		return "", err
	}
	entry, ok := reg.Templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return entry.SourceURL, nil
}

// Exists reports whether the template file of name exists.
func (r *Registry) Exists(name string) (bool, error) {
	return afero.Exists(r.fs, r.TemplatePath(name))
}

// ReadTemplate returns the raw content of template name.
func (r *Registry) ReadTemplate(name string) ([]byte, error) {
	data, err := afero.ReadFile(r.fs, r.TemplatePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
		}
		return nil, fmt.Errorf("failed to read template %s: %w", name, err)
	}
	return data, nil
}

// SaveTemplate writes the content of template name.
func (r *Registry) SaveTemplate(name string, content []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(r.fs, r.TemplatePath(name), content, 0644); err != nil {
		return fmt.Errorf("failed to save template %s: %w", name, err)
	}
	return nil
}

// Remove deletes the template file of name and its registry entry.
func (r *Registry) Remove(name string) error {
	if name == BuiltinTemplate {
		return ErrReserved
	}
	ok, err := r.Exists(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	if err := r.fs.Remove(r.TemplatePath(name)); err != nil {
		return fmt.Errorf("failed to delete template %s: %w", name, err)
	}
	if err := r.Unregister(name); err != nil && !errors.Is(err, ErrNotRegistered) {
		return err
	}
	return nil
}

// ValidateName rejects names that cannot be used as a template file name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("template name is required")
	case name == BuiltinTemplate:
		return ErrReserved
	case strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, "."):
		return fmt.Errorf("invalid template name %q", name)
	}
	return nil
}
