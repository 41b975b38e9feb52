package refs

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/aftr-cli/aftr/internal/git"
)

// DefaultBranch is used when a source does not name a branch.
const DefaultBranch = "main"

var (
	// ErrSourceNotFound is returned when a source name is not registered.
	ErrSourceNotFound = errors.New("source not found")
	// ErrDuplicateSource is returned when a source name is already registered.
	ErrDuplicateSource = errors.New("source already exists")
)

// Source is a registered remote reference: a sub-path of a git branch that is
// mirrored into .aftr/<LocalDir>/.
type Source struct {
	Name     string `toml:"name"`
	URL      string `toml:"url"`
	Path     string `toml:"path"`
	Branch   string `toml:"branch"`
	LocalDir string `toml:"local_dir,omitempty"`
}

// WithDefaults returns s with Branch and LocalDir filled in.
func (s Source) WithDefaults() Source {
	if s.Branch == "" {
		s.Branch = DefaultBranch
	}
	if s.LocalDir == "" {
		s.LocalDir = s.Name
	}
	return s
}

// Validate checks that s can be stored and synced.
func (s Source) Validate() error {
	s = s.WithDefaults()
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("url is required")
	}
	if strings.HasPrefix(s.URL, "-") {
		return fmt.Errorf("url %q must not start with '-'", s.URL)
	}
	if _, err := git.CleanSubPath(s.Path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if strings.HasPrefix(s.Branch, "-") || strings.ContainsAny(s.Branch, " \t") {
		return fmt.Errorf("invalid branch %q", s.Branch)
	}
	if err := validateLocalDir(s.LocalDir); err != nil {
		return err
	}
	return nil
}

// validateLocalDir rejects directories outside .aftr/, names that start with
// "." and the refs.toml name, all of which would clobber aftr's own files.
func validateLocalDir(dir string) error {
	clean, err := git.CleanSubPath(dir)
	if err != nil {
		return fmt.Errorf("invalid local_dir: %w", err)
	}
	parts := strings.Split(clean, "/")
	for _, part := range parts {
		if strings.HasPrefix(part, ".") {
			return fmt.Errorf("invalid local_dir %q: components must not start with '.'", dir)
		}
	}
	if parts[0] == ConfigFile {
		return fmt.Errorf("invalid local_dir %q: %s is reserved", dir, ConfigFile)
	}
	return nil
}

// Index is a name-unique collection of sources kept in registration order.
type Index struct {
	m *orderedmap.OrderedMap[string, Source]
}

// NewIndex builds an Index from sources, rejecting duplicate names.
func NewIndex(sources []Source) (*Index, error) {
	ix := &Index{m: orderedmap.NewOrderedMap[string, Source]()}
	for _, src := range sources {
		if err := ix.Add(src); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// Add appends src. It fails with ErrDuplicateSource if the name is taken.
func (ix *Index) Add(src Source) error {
	src = src.WithDefaults()
	if _, exists := ix.m.Get(src.Name); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, src.Name)
	}
	ix.m.Set(src.Name, src)
	return nil
}

// Get returns the source registered under name.
func (ix *Index) Get(name string) (Source, bool) {
	return ix.m.Get(name)
}

// Remove deletes name and returns the removed source.
func (ix *Index) Remove(name string) (Source, bool) {
	src, ok := ix.m.Get(name)
	if !ok {
		return Source{}, false
	}
	ix.m.Delete(name)
	return src, true
}

// Len returns the number of sources.
func (ix *Index) Len() int {
	return ix.m.Len()
}

// Sources returns the sources in registration order.
func (ix *Index) Sources() []Source {
	out := make([]Source, 0, ix.m.Len())
	for el := ix.m.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

// SelectSources returns every source when name is empty, otherwise only the
// named one. An unknown name fails with ErrSourceNotFound.
func SelectSources(sources []Source, name string) ([]Source, error) {
	if name == "" {
		return sources, nil
	}
	for _, src := range sources {
		if src.Name == name {
			return []Source{src}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
}

// Collision lists sources whose mirrors overlap, in registration order.
// LocalDir is the shared directory or, when Nested is set, the outer of two
// nested directories.
type Collision struct {
	LocalDir string
	Names    []string
	Nested   bool
}

// LocalDirCollisions reports local directories claimed by more than one
// source, followed by pairs of directories nested inside one another.
// Syncing such sources overwrites the shared or inner mirror; the last one
// synced wins.
func LocalDirCollisions(sources []Source) []Collision {
	dirs := make([]string, len(sources))
	byDir := orderedmap.NewOrderedMap[string, []string]()
	for i, src := range sources {
		src = src.WithDefaults()
		dirs[i] = path.Clean(src.LocalDir)
		names, _ := byDir.Get(dirs[i])
		byDir.Set(dirs[i], append(names, src.Name))
	}

	var out []Collision
	for el := byDir.Front(); el != nil; el = el.Next() {
		if len(el.Value) > 1 {
			out = append(out, Collision{LocalDir: el.Key, Names: el.Value})
		}
	}

	keys := byDir.Keys()
	for _, outer := range keys {
		for _, inner := range keys {
			if !strings.HasPrefix(inner, outer+"/") {
				continue
			}
			var names []string
			for i, src := range sources {
				if dirs[i] == outer || dirs[i] == inner {
					names = append(names, src.Name)
				}
			}
			out = append(out, Collision{LocalDir: outer, Names: names, Nested: true})
		}
	}
	return out
}
