package version

import "testing"

type fakeCatalog struct {
	known map[int64]bool
}

func (c *fakeCatalog) HasSnapshot(snapshotID int64) bool {
	return c.known[snapshotID]
}

func newTestMachine(t *testing.T, ids ...int64) (*Machine, *fakeCatalog) {
	t.Helper()
	catalog := &fakeCatalog{known: make(map[int64]bool)}
	for _, id := range ids {
		catalog.known[id] = true
	}
	machine, err := NewMachine(catalog)
	if err != nil {
		t.Fatalf("failed to build machine: %v", err)
	}
	return machine, catalog
}

func TestNewMachineRequiresCatalog(t *testing.T) {
	if _, err := NewMachine(nil); err != ErrMissingCatalog {
		t.Fatalf("expected ErrMissingCatalog, got %v", err)
	}
}

func TestMachineStartsLiveAndEditable(t *testing.T) {
	machine, _ := newTestMachine(t, 3)
	if machine.Mode() != ModeLive {
		t.Fatalf("machine must start live, got %s", machine.Mode())
	}
	if !machine.Editable() {
		t.Fatalf("live buffer must be editable")
	}
	if _, viewing := machine.ViewedSnapshot(); viewing {
		t.Fatalf("no snapshot may be pinned initially")
	}
}

func TestViewPinsSnapshotAndFreezesEditing(t *testing.T) {
	machine, _ := newTestMachine(t, 3, 5)

	if err := machine.View(5); err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if machine.Editable() {
		t.Fatalf("viewed snapshot must never be editable")
	}
	id, viewing := machine.ViewedSnapshot()
	if !viewing || id != 5 {
		t.Fatalf("expected pinned snapshot 5, got %d (viewing=%v)", id, viewing)
	}
}

func TestViewRejectsUnknownSnapshot(t *testing.T) {
	machine, _ := newTestMachine(t, 3)
	if err := machine.View(99); err != ErrUnknownSnapshot {
		t.Fatalf("expected ErrUnknownSnapshot, got %v", err)
	}
	if machine.Mode() != ModeLive {
		t.Fatalf("rejected view must leave the machine live")
	}
}

func TestLiveClosesPanel(t *testing.T) {
	machine, _ := newTestMachine(t, 3)
	if err := machine.View(3); err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if err := machine.OpenPanel(); err != nil {
		t.Fatalf("open panel failed: %v", err)
	}
	if !machine.PanelOpen() {
		t.Fatalf("panel must be open")
	}

	machine.Live()
	if machine.PanelOpen() {
		t.Fatalf("returning live must close the panel")
	}
	if !machine.Editable() {
		t.Fatalf("returning live must restore editability")
	}
}

func TestOpenPanelRequiresViewing(t *testing.T) {
	machine, _ := newTestMachine(t, 3)
	if err := machine.OpenPanel(); err != ErrNotViewing {
		t.Fatalf("expected ErrNotViewing, got %v", err)
	}
}

func TestSwitchingSnapshotsClosesPanel(t *testing.T) {
	machine, _ := newTestMachine(t, 3, 5)
	if err := machine.View(3); err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if err := machine.OpenPanel(); err != nil {
		t.Fatalf("open panel failed: %v", err)
	}

	if err := machine.View(5); err != nil {
		t.Fatalf("second view failed: %v", err)
	}
	if machine.PanelOpen() {
		t.Fatalf("moving to another snapshot must close the panel")
	}
}

func TestRevalidateDropsVanishedSnapshot(t *testing.T) {
	machine, catalog := newTestMachine(t, 3)
	if err := machine.View(3); err != nil {
		t.Fatalf("view failed: %v", err)
	}

	machine.Revalidate()
	if machine.Mode() != ModeViewing {
		t.Fatalf("revalidate must keep an existing snapshot pinned")
	}

	delete(catalog.known, 3)
	machine.Revalidate()
	if machine.Mode() != ModeLive {
		t.Fatalf("revalidate must fall back to live when the snapshot is gone")
	}
}
