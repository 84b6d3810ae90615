package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cennso/sitegen/pkg/utils"
)

const stateFileName = "watch_state.json"

// BuildState is the outcome of the last build of a site
type BuildState struct {
	LastRunTime    time.Time `json:"last_run_time"`
	LastRunSuccess bool      `json:"last_run_success"`
	RunID          string    `json:"run_id,omitempty"`
	Trigger        string    `json:"trigger,omitempty"` // initial, change, schedule
	Pages          int       `json:"pages"`
	Rendered       int       `json:"rendered"`
	Cached         int       `json:"cached"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// WatchState is the persisted watch state, keyed by site name
type WatchState struct {
	Sites     map[string]BuildState `json:"sites"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// StateManager persists build outcomes to state_dir/watch_state.json
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state:     WatchState{Sites: make(map[string]BuildState)},
	}
}

// Load reads the state file. A missing file is an empty state.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = WatchState{Sites: make(map[string]BuildState)}
			return nil
		}
		return fmt.Errorf("%w: read watch state: %v", utils.ErrFilesystem, err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("%w: watch state JSON: %v", utils.ErrParsing, err)
	}
	if m.state.Sites == nil {
		m.state.Sites = make(map[string]BuildState)
	}
	return nil
}

// Save writes the state file
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("%w: create state directory: %v", utils.ErrFilesystem, err)
	}
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal watch state: %w", err)
	}
	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("%w: write watch state: %v", utils.ErrFilesystem, err)
	}
	return nil
}

// Get returns the last build state of a site
func (m *StateManager) Get(site string) (BuildState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Sites[site]
	return state, ok
}

// Record stores a build outcome. LastRunTime is set to now when zero.
func (m *StateManager) Record(site string, state BuildState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state.LastRunTime.IsZero() {
		state.LastRunTime = time.Now()
	}
	m.state.Sites[site] = state
}

// ShouldRun reports whether interval has passed since the site's last build
func (m *StateManager) ShouldRun(site string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Sites[site]
	if !ok {
		return true
	}
	return time.Since(state.LastRunTime) >= interval
}

// NextRunTime returns when the site is next due for a periodic rebuild
func (m *StateManager) NextRunTime(site string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Sites[site]
	if !ok {
		return time.Now()
	}
	return state.LastRunTime.Add(interval)
}
