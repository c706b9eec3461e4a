package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgnsrekt/web_agent/internal/backend"
	"github.com/google/uuid"
)

// State describes a tab's lifecycle state.
type State string

const (
	StateOpen   State = "OPEN"
	StateClosed State = "CLOSED"
)

// Tab is an immutable snapshot of one browser session. Callers hold tab IDs,
// never a live reference into the registry.
type Tab struct {
	ID           string
	State        State
	CurrentURL   string
	History      []string
	LastArtifact string
	BackendID    backend.PageID
}

// Summary is the listing shape for one tab.
type Summary struct {
	ID         string `json:"tab_id"`
	State      string `json:"state"`
	CurrentURL string `json:"current_url,omitempty"`
}

type tabEntry struct {
	id         string
	state      State
	currentURL string
	history    []string
	artifact   string
	backendID  backend.PageID
}

// Manager owns the set of live tabs, their lifecycle, and the per-tab
// dispatch locks. Registry access holds only a short-lived mutex; the per-tab
// locks are held by the dispatcher across whole backend calls so that
// concurrent calls against one tab never interleave.
type Manager struct {
	maxTabs int

	mu    sync.Mutex
	tabs  map[string]*tabEntry
	order []string

	tabLocksMu sync.Mutex
	tabLocks   map[string]*sync.Mutex
}

// NewManager creates a Manager capped at maxTabs live tabs. A cap of zero or
// below disables the limit.
func NewManager(maxTabs int) *Manager {
	return &Manager{
		maxTabs:  maxTabs,
		tabs:     make(map[string]*tabEntry),
		tabLocks: make(map[string]*sync.Mutex),
	}
}

// Create allocates a new open tab bound to the given backend page.
func (m *Manager) Create(backendID backend.PageID) (Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxTabs > 0 && m.liveCountLocked() >= m.maxTabs {
		return Tab{}, backend.NewError(backend.KindResourceExhausted,
			fmt.Sprintf("max live tab count reached (%d)", m.maxTabs), nil)
	}

	id := "tab-" + uuid.New().String()
	entry := &tabEntry{id: id, state: StateOpen, backendID: backendID}
	m.tabs[id] = entry
	m.order = append(m.order, id)

	slog.Info("session tab created", "tab_id", id)
	return snapshotOf(entry), nil
}

// Get returns a snapshot of an open tab. Never-issued IDs are NOT_FOUND;
// closed tabs are ALREADY_CLOSED so callers can tell the two apart.
func (m *Manager) Get(id string) (Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.openEntryLocked(id)
	if err != nil {
		return Tab{}, err
	}
	return snapshotOf(entry), nil
}

// Close transitions the tab to CLOSED and releases its artifact reference.
// Close is deliberately not idempotent: a second close reports
// ALREADY_CLOSED so callers can detect double-close bugs.
func (m *Manager) Close(id string) (Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.openEntryLocked(id)
	if err != nil {
		return Tab{}, err
	}
	entry.state = StateClosed
	entry.artifact = ""
	backendID := entry.backendID
	entry.backendID = ""

	slog.Info("session tab closed", "tab_id", id)
	tab := snapshotOf(entry)
	tab.BackendID = backendID
	return tab, nil
}

// Remove erases a tab from the registry entirely, as if it was never issued.
// Only the dispatcher's new-tab unwind path uses it: an ID that failed
// creation must not linger as a closed ghost in listings. Unknown IDs are a
// no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tabs[id]; !ok {
		return
	}
	delete(m.tabs, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	slog.Info("session tab removed", "tab_id", id)
}

// List returns all tabs, open and closed, in creation order.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Summary, 0, len(m.order))
	for _, id := range m.order {
		entry := m.tabs[id]
		if entry == nil {
			continue
		}
		out = append(out, Summary{ID: entry.id, State: string(entry.state), CurrentURL: entry.currentURL})
	}
	return out
}

// RecordNavigation appends the URL to history and makes it current.
func (m *Manager) RecordNavigation(id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.openEntryLocked(id)
	if err != nil {
		return err
	}
	entry.history = append(entry.history, url)
	entry.currentURL = url
	slog.Debug("session navigation recorded", "tab_id", id, "url", url, "history_depth", len(entry.history))
	return nil
}

// GoBack pops the newest history entry and restores the prior one. At least
// two entries must exist.
func (m *Manager) GoBack(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.openEntryLocked(id)
	if err != nil {
		return "", err
	}
	if len(entry.history) < 2 {
		return "", backend.NewError(backend.KindNoHistory, "no history to go back to", nil)
	}
	entry.history = entry.history[:len(entry.history)-1]
	entry.currentURL = entry.history[len(entry.history)-1]
	slog.Debug("session went back", "tab_id", id, "url", entry.currentURL)
	return entry.currentURL, nil
}

// RecordArtifact overwrites the tab's last artifact reference.
func (m *Manager) RecordArtifact(id, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.openEntryLocked(id)
	if err != nil {
		return err
	}
	entry.artifact = handle
	return nil
}

// TabLock returns the per-tab mutex used to serialize dispatch on one tab.
// Locks are created on demand so never-issued IDs still lock deterministically
// (the subsequent Get reports NOT_FOUND under the lock).
func (m *Manager) TabLock(id string) *sync.Mutex {
	m.tabLocksMu.Lock()
	defer m.tabLocksMu.Unlock()
	l, ok := m.tabLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.tabLocks[id] = l
	}
	return l
}

func (m *Manager) liveCountLocked() int {
	n := 0
	for _, entry := range m.tabs {
		if entry.state == StateOpen {
			n++
		}
	}
	return n
}

func (m *Manager) openEntryLocked(id string) (*tabEntry, error) {
	entry, ok := m.tabs[id]
	if !ok {
		return nil, backend.NewError(backend.KindNotFound, "unknown tab: "+id, nil)
	}
	if entry.state == StateClosed {
		return nil, backend.NewError(backend.KindAlreadyClosed, "tab already closed: "+id, nil)
	}
	return entry, nil
}

func snapshotOf(entry *tabEntry) Tab {
	history := make([]string, len(entry.history))
	copy(history, entry.history)
	return Tab{
		ID:           entry.id,
		State:        entry.state,
		CurrentURL:   entry.currentURL,
		History:      history,
		LastArtifact: entry.artifact,
		BackendID:    entry.backendID,
	}
}
