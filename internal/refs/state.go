package refs

import "time"

// State is the persisted sync state of a project, keyed by source name.
type State struct {
	Sources map[string]SourceState `json:"sources"`
}

// SourceState records the last successful sync of one source.
type SourceState struct {
	LastCommit string    `json:"last_commit"`
	SyncedAt   time.Time `json:"synced_at"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Sources: make(map[string]SourceState)}
}

// Get returns the recorded state of name.
func (s *State) Get(name string) (SourceState, bool) {
	st, ok := s.Sources[name]
	return st, ok
}

// LastCommit returns the recorded commit of name, or "" if never synced.
func (s *State) LastCommit(name string) string {
	return s.Sources[name].LastCommit
}

// Record stores a successful sync of name at commit.
func (s *State) Record(name, commit string, at time.Time) {
	if s.Sources == nil {
		s.Sources = make(map[string]SourceState)
	}
	s.Sources[name] = SourceState{LastCommit: commit, SyncedAt: at}
}

// Forget drops name from the state and reports whether it was present.
func (s *State) Forget(name string) bool {
	if _, ok := s.Sources[name]; !ok {
		return false
	}
	delete(s.Sources, name)
	return true
}
