package version

import (
	"errors"
	"sync"
)

var (
	// ErrMissingCatalog indicates the machine was built without a snapshot catalog.
	ErrMissingCatalog = errors.New("version: catalog is required")
	// ErrUnknownSnapshot rejects viewing a snapshot the room does not have.
	ErrUnknownSnapshot = errors.New("version: unknown snapshot")
	// ErrNotViewing rejects opening the side panel while on the live buffer.
	ErrNotViewing = errors.New("version: side panel requires a viewed snapshot")
)

// Mode says whether the participant follows the live buffer or inspects
// a frozen snapshot.
type Mode int

const (
	// ModeLive tracks the shared buffer; the editor is writable.
	ModeLive Mode = iota
	// ModeViewing pins a snapshot; the editor is read-only.
	ModeViewing
)

// String renders the mode for logs and the status API.
func (m Mode) String() string {
	if m == ModeViewing {
		return "viewing"
	}
	return "live"
}

// Catalog answers whether a snapshot id currently exists in the room.
type Catalog interface {
	HasSnapshot(snapshotID int64) bool
}

// Machine tracks which version of the room a participant looks at. The
// pointer is the snapshot's stable id, so reordering or inserting
// snapshots never silently moves the view to a different one.
type Machine struct {
	catalog Catalog

	mu         sync.RWMutex
	mode       Mode
	snapshotID int64
	panelOpen  bool
}

// NewMachine builds a Machine starting on the live buffer.
func NewMachine(catalog Catalog) (*Machine, error) {
	if catalog == nil {
		return nil, ErrMissingCatalog
	}
	return &Machine{catalog: catalog}, nil
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// ViewedSnapshot returns the pinned snapshot id while viewing.
func (m *Machine) ViewedSnapshot() (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.mode != ModeViewing {
		return 0, false
	}
	return m.snapshotID, true
}

// Editable reports whether the buffer accepts local edits. Only the live
// buffer ever does.
func (m *Machine) Editable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode == ModeLive
}

// PanelOpen reports whether the comment/vote side panel is showing.
func (m *Machine) PanelOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.panelOpen
}

// View pins a snapshot by id. Viewing a snapshot the room does not have
// is rejected rather than clamped to a neighbour.
func (m *Machine) View(snapshotID int64) error {
	if !m.catalog.HasSnapshot(snapshotID) {
		return ErrUnknownSnapshot
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModeViewing && m.snapshotID == snapshotID {
		return nil
	}
	m.mode = ModeViewing
	m.snapshotID = snapshotID
	m.panelOpen = false
	return nil
}

// Live returns to the shared buffer and closes the side panel.
func (m *Machine) Live() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModeLive
	m.snapshotID = 0
	m.panelOpen = false
}

// OpenPanel shows the comment/vote side panel for the viewed snapshot.
func (m *Machine) OpenPanel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeViewing {
		return ErrNotViewing
	}
	m.panelOpen = true
	return nil
}

// ClosePanel hides the side panel without leaving the viewed snapshot.
func (m *Machine) ClosePanel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panelOpen = false
}

// Revalidate drops back to the live buffer if the viewed snapshot no
// longer exists, e.g. after a full list refetch.
func (m *Machine) Revalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeViewing {
		return
	}
	if !m.catalog.HasSnapshot(m.snapshotID) {
		m.mode = ModeLive
		m.snapshotID = 0
		m.panelOpen = false
	}
}

// Reset returns to the live buffer. Used when the agent switches rooms.
func (m *Machine) Reset() {
	m.Live()
}
