package person

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/whereabouts/internal/infrastructure/config"
)

func intPtr(v int) *int { return &v }

// recordingLogger captures warnings for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprint(append([]any{msg}, args...)...))
}

func testPeople() []config.PersonConfig {
	return []config.PersonConfig{
		{Name: "Alice", TrackerUser: "alice", TrackerDevice: "phone1", Channel: intPtr(0)},
		{Name: "Bob", TrackerUser: "bob", TrackerDevice: "(phone|watch)", Channel: intPtr(1)},
		{Name: "Any Alice", TrackerUser: "alice", TrackerDevice: ".*", Channel: intPtr(2)},
	}
}

func TestLookup(t *testing.T) {
	r, err := NewRegistry(testPeople(), nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	tests := []struct {
		identity string
		wantName string
		wantOK   bool
	}{
		{identity: "alice/phone1", wantName: "Alice", wantOK: true},
		{identity: "bob/phone", wantName: "Bob", wantOK: true},
		{identity: "bob/watch", wantName: "Bob", wantOK: true},
		{identity: "alice/laptop", wantName: "Any Alice", wantOK: true},
		{identity: "bob/tablet", wantOK: false},
		{identity: "carol/phone", wantOK: false},
		// Patterns are searched, not anchored.
		{identity: "xalice/phone1y", wantName: "Alice", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.identity, func(t *testing.T) {
			p, ok := r.Lookup(tt.identity)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.identity, ok, tt.wantOK)
			}
			if ok && p.DisplayName != tt.wantName {
				t.Errorf("Lookup(%q) = %q, want %q", tt.identity, p.DisplayName, tt.wantName)
			}
		})
	}
}

func TestLookup_DeclarationOrderWins(t *testing.T) {
	people := []config.PersonConfig{
		{Name: "Wildcard", TrackerUser: "alice", TrackerDevice: ".*", Channel: intPtr(5)},
		{Name: "Alice", TrackerUser: "alice", TrackerDevice: "phone1", Channel: intPtr(0)},
	}
	r, err := NewRegistry(people, nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	p, ok := r.Lookup("alice/phone1")
	if !ok || p.DisplayName != "Wildcard" {
		t.Errorf("Lookup() = %q, %v, want Wildcard", p.DisplayName, ok)
	}
}

func TestNewRegistry_DuplicateIdentityKeepsFirstPosition(t *testing.T) {
	logger := &recordingLogger{}
	people := []config.PersonConfig{
		{Name: "Alice", TrackerUser: "alice", TrackerDevice: "phone1", Channel: intPtr(0)},
		{Name: "Bob", TrackerUser: "bob", TrackerDevice: "phone", Channel: intPtr(1)},
		{Name: "Alice Again", TrackerUser: "alice", TrackerDevice: "phone1", Channel: intPtr(3)},
	}

	r, err := NewRegistry(people, logger)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	got := r.People()
	if len(got) != 2 {
		t.Fatalf("len(People()) = %d, want 2", len(got))
	}
	if got[0].DisplayName != "Alice Again" || got[0].Channel != 3 {
		t.Errorf("People()[0] = %+v, want last declaration at first position", got[0])
	}
	if len(logger.warns) == 0 {
		t.Error("expected a duplicate identity warning")
	}
}

func TestNewRegistry_WarnsOnDuplicateChannel(t *testing.T) {
	logger := &recordingLogger{}
	people := []config.PersonConfig{
		{Name: "Alice", TrackerUser: "alice", TrackerDevice: "phone1", Channel: intPtr(0)},
		{Name: "Bob", TrackerUser: "bob", TrackerDevice: "phone", Channel: intPtr(0)},
	}

	r, err := NewRegistry(people, logger)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	dups := r.DuplicateChannels()
	if names := dups[0]; len(names) != 2 || names[0] != "Alice" || names[1] != "Bob" {
		t.Errorf("DuplicateChannels()[0] = %v, want [Alice Bob]", names)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings = %v, want exactly one", logger.warns)
	}
	if channels := r.Channels(); len(channels) != 1 || channels[0] != 0 {
		t.Errorf("Channels() = %v, want [0]", channels)
	}
}

func TestNewRegistry_InvalidIdentity(t *testing.T) {
	people := []config.PersonConfig{
		{Name: "Broken", TrackerUser: "alice", TrackerDevice: "phone[", Channel: intPtr(0)},
	}

	_, err := NewRegistry(people, nil)
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("NewRegistry() error = %v, want ErrInvalidIdentity", err)
	}
}

func TestPersonIdentity(t *testing.T) {
	p := Person{TrackerUser: "alice", TrackerDevice: "phone1"}
	if p.Identity() != "alice/phone1" {
		t.Errorf("Identity() = %q", p.Identity())
	}
}
