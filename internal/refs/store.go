package refs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/aftr-cli/aftr/internal/fsutil"
)

const (
	// AftrDir is the per-project directory holding config, state and mirrors.
	AftrDir = ".aftr"
	// ConfigFile lists the registered sources.
	ConfigFile = "refs.toml"
	// StateFile records the last synced commit per source.
	StateFile = ".state.json"
	// IgnoreEntry is the .gitignore line that keeps the state file untracked.
	IgnoreEntry = AftrDir + "/" + StateFile
)

// sourcesFile is the on-disk shape of refs.toml.
type sourcesFile struct {
	Sources []Source `toml:"sources"`
}

// Store reads and writes the refs files of one project directory.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore returns a Store rooted at projectDir.
func NewStore(fsys afero.Fs, projectDir string) *Store {
	return &Store{fs: fsys, root: projectDir}
}

// Root returns the project directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns <project>/.aftr.
func (s *Store) Dir() string {
	return filepath.Join(s.root, AftrDir)
}

// ConfigPath returns the path of refs.toml.
func (s *Store) ConfigPath() string {
	return filepath.Join(s.Dir(), ConfigFile)
}

// StatePath returns the path of the sync state file.
func (s *Store) StatePath() string {
	return filepath.Join(s.Dir(), StateFile)
}

// MirrorPath returns the mirror directory for localDir.
func (s *Store) MirrorPath(localDir string) string {
	return filepath.Join(s.Dir(), filepath.FromSlash(localDir))
}

// LoadSources returns the registered sources in declaration order. A missing
// refs.toml yields an empty list.
func (s *Store) LoadSources() ([]Source, error) {
	data, err := afero.ReadFile(s.fs, s.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []Source{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.ConfigPath(), err)
	}

	var file sourcesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.ConfigPath(), err)
	}

	sources := make([]Source, 0, len(file.Sources))
	for _, src := range file.Sources {
		sources = append(sources, src.WithDefaults())
	}
	return sources, nil
}

// SaveSources overwrites refs.toml with sources, preserving their order.
// local_dir is only written when it differs from the name.
func (s *Store) SaveSources(sources []Source) error {
	file := sourcesFile{Sources: make([]Source, 0, len(sources))}
	for _, src := range sources {
		src = src.WithDefaults()
		if src.LocalDir == src.Name {
			src.LocalDir = ""
		}
		file.Sources = append(file.Sources, src)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(file); err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	if err := fsutil.WriteFileAtomic(s.fs, s.ConfigPath(), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.ConfigPath(), err)
	}
	return nil
}

// LoadState returns the persisted sync state. The returned state is never
// nil: a missing file yields an empty state and no error, while an unreadable
// or malformed file yields an empty state together with the reason, which
// callers are expected to log and otherwise ignore.
func (s *Store) LoadState() (*State, error) {
	data, err := afero.ReadFile(s.fs, s.StatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return NewState(), fmt.Errorf("failed to read %s: %w", s.StatePath(), err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return NewState(), fmt.Errorf("failed to parse %s: %w", s.StatePath(), err)
	}
	if state.Sources == nil {
		state.Sources = make(map[string]SourceState)
	}
	return &state, nil
}

// SaveState overwrites the state file.
func (s *Store) SaveState(state *State) error {
	if state == nil {
		state = NewState()
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := fsutil.WriteFileAtomic(s.fs, s.StatePath(), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.StatePath(), err)
	}
	return nil
}

// ForgetState removes name from the state file. A missing or corrupt state
// file is replaced by one without the entry.
func (s *Store) ForgetState(name string) error {
	state, _ := s.LoadState()
	if !state.Forget(name) {
		return nil
	}
	return s.SaveState(state)
}

// RemoveMirror deletes the mirror directory of localDir. It reports whether
// a directory was removed. A localDir that does not name a directory inside
// .aftr/ is an error and nothing is deleted.
func (s *Store) RemoveMirror(localDir string) (bool, error) {
	if err := validateLocalDir(localDir); err != nil {
		return false, err
	}
	path := s.MirrorPath(localDir)
	exists, err := afero.DirExists(s.fs, path)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := s.fs.RemoveAll(path); err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return true, nil
}

// EnsureIgnoreEntry appends IgnoreEntry to <project>/.gitignore unless a line
// already matches it, creating the file if needed. Existing content is kept
// byte for byte. It reports whether the file was changed.
func (s *Store) EnsureIgnoreEntry() (bool, error) {
	path := filepath.Join(s.root, ".gitignore")

	content, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to read %s: %w", path, err)
		}
		content = nil
	}

	if hasIgnoreEntry(string(content)) {
		return false, nil
	}

	var buf bytes.Buffer
	buf.Write(content)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(IgnoreEntry + "\n")

	if err := fsutil.WriteFileAtomic(s.fs, path, buf.Bytes(), 0644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

func hasIgnoreEntry(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == IgnoreEntry {
			return true
		}
	}
	return false
}
