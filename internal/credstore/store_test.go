package credstore

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "credentials.json"))
}

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	s := newTestStore(t)
	want := Credential{Token: "abc", User: "a@x.com"}

	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("Load: credential should be present after Save")
	}
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestStore_LoadAbsent(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("Load: absent credential should report ok=false")
	}
}

func TestStore_SaveReplacesExisting(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(Credential{Token: "old", User: "old@x.com"}); err != nil {
		t.Fatalf("Save old: %v", err)
	}
	if err := s.Save(Credential{Token: "new", User: "new@x.com"}); err != nil {
		t.Fatalf("Save new: %v", err)
	}

	got, _, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Token != "new" {
		t.Errorf("Token = %q, want %q", got.Token, "new")
	}
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(Credential{Token: "abc", User: "a@x.com"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	_, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("credential should be absent after Clear")
	}
}

func TestStore_ClearAbsentIsNoError(t *testing.T) {
	s := newTestStore(t)
	if err := s.Clear(); err != nil {
		t.Errorf("Clear on absent file: %v", err)
	}
}

func TestStore_LoadEmptyTokenTreatedAbsent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(Credential{Token: "", User: "a@x.com"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("a credential without a token should report ok=false")
	}
}

func TestStore_FilePermissions(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(Credential{Token: "abc", User: "a@x.com"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("credential file mode = %o, want 600", perm)
	}
}
