package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/dgnsrekt/web_agent/internal/backend"
)

func TestCreateAssignsPrefixedID(t *testing.T) {
	m := NewManager(0)

	tab, err := m.Create("page-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(tab.ID, "tab-") {
		t.Fatalf("tab ID = %q; want tab- prefix", tab.ID)
	}
	if tab.State != StateOpen {
		t.Fatalf("tab state = %q; want %q", tab.State, StateOpen)
	}
}

func TestGetUnknownTabIsNotFound(t *testing.T) {
	m := NewManager(0)

	_, err := m.Get("tab-missing")
	if err == nil {
		t.Fatal("Get() = nil error; want NOT_FOUND")
	}
	if kind := backend.KindOf(err); kind != backend.KindNotFound {
		t.Fatalf("error kind = %q; want %q", kind, backend.KindNotFound)
	}
}

func TestOperationsOnClosedTabAreAlreadyClosed(t *testing.T) {
	m := NewManager(0)
	tab, err := m.Create("page-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.Close(tab.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := m.Get(tab.ID); backend.KindOf(err) != backend.KindAlreadyClosed {
		t.Fatalf("Get() error kind = %q; want %q", backend.KindOf(err), backend.KindAlreadyClosed)
	}
	if _, err := m.Close(tab.ID); backend.KindOf(err) != backend.KindAlreadyClosed {
		t.Fatalf("second Close() error kind = %q; want %q", backend.KindOf(err), backend.KindAlreadyClosed)
	}
}

func TestGoBackRequiresHistoryDepth(t *testing.T) {
	m := NewManager(0)
	tab, err := m.Create("page-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := m.GoBack(tab.ID); backend.KindOf(err) != backend.KindNoHistory {
		t.Fatalf("GoBack() on fresh tab error kind = %q; want %q", backend.KindOf(err), backend.KindNoHistory)
	}

	if err := m.RecordNavigation(tab.ID, "https://a.example"); err != nil {
		t.Fatalf("RecordNavigation() error = %v", err)
	}
	if _, err := m.GoBack(tab.ID); backend.KindOf(err) != backend.KindNoHistory {
		t.Fatalf("GoBack() with one entry error kind = %q; want %q", backend.KindOf(err), backend.KindNoHistory)
	}
}

func TestGoBackPopsHistory(t *testing.T) {
	m := NewManager(0)
	tab, err := m.Create("page-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for _, url := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		if err := m.RecordNavigation(tab.ID, url); err != nil {
			t.Fatalf("RecordNavigation(%q) error = %v", url, err)
		}
	}

	url, err := m.GoBack(tab.ID)
	if err != nil {
		t.Fatalf("GoBack() error = %v", err)
	}
	if url != "https://b.example" {
		t.Fatalf("GoBack() = %q; want %q", url, "https://b.example")
	}

	got, err := m.Get(tab.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.CurrentURL != "https://b.example" {
		t.Fatalf("CurrentURL = %q; want %q", got.CurrentURL, "https://b.example")
	}
	if len(got.History) != 2 {
		t.Fatalf("len(History) = %d; want 2", len(got.History))
	}

	url, err = m.GoBack(tab.ID)
	if err != nil {
		t.Fatalf("second GoBack() error = %v", err)
	}
	if url != "https://a.example" {
		t.Fatalf("second GoBack() = %q; want %q", url, "https://a.example")
	}
	if _, err := m.GoBack(tab.ID); backend.KindOf(err) != backend.KindNoHistory {
		t.Fatalf("GoBack() at history root error kind = %q; want %q", backend.KindOf(err), backend.KindNoHistory)
	}
}

func TestMaxTabsEnforced(t *testing.T) {
	m := NewManager(2)

	first, err := m.Create("page-1")
	if err != nil {
		t.Fatalf("Create() #1 error = %v", err)
	}
	if _, err := m.Create("page-2"); err != nil {
		t.Fatalf("Create() #2 error = %v", err)
	}

	_, err = m.Create("page-3")
	if backend.KindOf(err) != backend.KindResourceExhausted {
		t.Fatalf("Create() over cap error kind = %q; want %q", backend.KindOf(err), backend.KindResourceExhausted)
	}

	// Closing a tab frees capacity; closed tabs do not count toward the cap.
	if _, err := m.Close(first.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := m.Create("page-3"); err != nil {
		t.Fatalf("Create() after close error = %v", err)
	}
}

func TestListPreservesCreationOrderIncludingClosed(t *testing.T) {
	m := NewManager(0)

	a, _ := m.Create("page-a")
	b, _ := m.Create("page-b")
	c, _ := m.Create("page-c")
	if _, err := m.Close(b.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	list := m.List()
	if len(list) != 3 {
		t.Fatalf("len(List()) = %d; want 3", len(list))
	}
	wantOrder := []string{a.ID, b.ID, c.ID}
	for i, want := range wantOrder {
		if list[i].ID != want {
			t.Fatalf("List()[%d].ID = %q; want %q", i, list[i].ID, want)
		}
	}
	if list[1].State != string(StateClosed) {
		t.Fatalf("closed tab state = %q; want %q", list[1].State, StateClosed)
	}
}

func TestCloseClearsArtifactAndReturnsBackendID(t *testing.T) {
	m := NewManager(0)
	tab, _ := m.Create("page-9")
	if err := m.RecordArtifact(tab.ID, "artifact-1"); err != nil {
		t.Fatalf("RecordArtifact() error = %v", err)
	}

	closed, err := m.Close(tab.ID)
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if closed.BackendID != backend.PageID("page-9") {
		t.Fatalf("closed.BackendID = %q; want %q", closed.BackendID, "page-9")
	}
	if closed.LastArtifact != "" {
		t.Fatalf("closed.LastArtifact = %q; want empty", closed.LastArtifact)
	}
}

func TestRemoveErasesTabFromRegistry(t *testing.T) {
	m := NewManager(0)
	a, _ := m.Create("page-a")
	b, _ := m.Create("page-b")

	m.Remove(a.ID)

	if _, err := m.Get(a.ID); backend.KindOf(err) != backend.KindNotFound {
		t.Fatalf("Get() after Remove error kind = %q; want %q", backend.KindOf(err), backend.KindNotFound)
	}
	list := m.List()
	if len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("List() = %+v; want only %s", list, b.ID)
	}

	// Removing an unknown ID is a no-op.
	m.Remove("tab-never-issued")
	if got := len(m.List()); got != 1 {
		t.Fatalf("len(List()) = %d; want 1", got)
	}
}

func TestConcurrentCreates(t *testing.T) {
	m := NewManager(0)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Create("page"); err != nil {
				t.Errorf("Create() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(m.List()); got != 32 {
		t.Fatalf("len(List()) = %d; want 32", got)
	}
}
