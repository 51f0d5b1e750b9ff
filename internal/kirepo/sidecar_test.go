package kirepo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kiproject/ki/internal/kierrors"
)

func setupSidecar(t *testing.T, root, colPath string) {
	t.Helper()
	kiDir := filepath.Join(root, SidecarDir)
	dirs := []string{
		kiDir,
		filepath.Join(kiDir, BackupsDir),
		filepath.Join(kiDir, InternalMirror),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := WriteCollectionPath(filepath.Join(kiDir, ConfigFile), colPath); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(kiDir, HashesFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(kiDir, LastPushFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, NotetypesFile), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindLocatesSidecarFromNestedDir(t *testing.T) {
	root := t.TempDir()
	setupSidecar(t, root, filepath.Join(root, "col.anki2"))

	nested := filepath.Join(root, "Deck", "Sub")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	found, err := Find(nested)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found != root {
		t.Errorf("Find = %q, want %q", found, root)
	}
}

func TestFindReturnsNotKiRepo(t *testing.T) {
	dir := t.TempDir()
	_, err := Find(dir)
	var target *kierrors.NotKiRepo
	if !errorsAs(err, &target) {
		t.Fatalf("expected *kierrors.NotKiRepo, got %v (%T)", err, err)
	}
}

func TestLoadFullRepo(t *testing.T) {
	root := t.TempDir()
	colPath := filepath.Join(root, "col.anki2")
	setupSidecar(t, root, colPath)

	repo, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if repo.CollectionPath != colPath {
		t.Errorf("CollectionPath = %q, want %q", repo.CollectionPath, colPath)
	}
	if string(repo.Root) != root {
		t.Errorf("Root = %q, want %q", repo.Root, root)
	}
}

func TestLoadMissingComponent(t *testing.T) {
	root := t.TempDir()
	setupSidecar(t, root, filepath.Join(root, "col.anki2"))
	if err := os.Remove(filepath.Join(root, SidecarDir, HashesFile)); err != nil {
		t.Fatal(err)
	}

	_, err := Load(root)
	var target *kierrors.MissingFile
	if !errorsAs(err, &target) {
		t.Fatalf("expected *kierrors.MissingFile, got %v (%T)", err, err)
	}
}

func TestReadWriteCollectionPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	if err := WriteCollectionPath(path, "/abs/path/col.anki2"); err != nil {
		t.Fatalf("WriteCollectionPath: %v", err)
	}
	got, err := ReadCollectionPath(path)
	if err != nil {
		t.Fatalf("ReadCollectionPath: %v", err)
	}
	if got != "/abs/path/col.anki2" {
		t.Errorf("ReadCollectionPath = %q", got)
	}
}

func TestReadCollectionPathMissingKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	if err := os.WriteFile(path, []byte("[other]\nfoo = bar\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := ReadCollectionPath(path)
	var target *kierrors.MissingFile
	if !errorsAs(err, &target) {
		t.Fatalf("expected *kierrors.MissingFile, got %v (%T)", err, err)
	}
}

func TestLastPushAndWriteLastPush(t *testing.T) {
	root := t.TempDir()
	colPath := filepath.Join(root, "col.anki2")
	setupSidecar(t, root, colPath)
	repo, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}

	if err := WriteLastPush(repo, "abc123\n"); err != nil {
		t.Fatalf("WriteLastPush: %v", err)
	}
	got, err := LastPush(repo)
	if err != nil {
		t.Fatalf("LastPush: %v", err)
	}
	if got != "abc123" {
		t.Errorf("LastPush = %q, want trimmed %q", got, "abc123")
	}
}

func TestTrimTrailingNewline(t *testing.T) {
	cases := map[string]string{
		"abc\n":   "abc",
		"abc\r\n": "abc",
		"abc":     "abc",
		"":        "",
	}
	for in, want := range cases {
		if got := trimTrailingNewline(in); got != want {
			t.Errorf("trimTrailingNewline(%q) = %q, want %q", in, got, want)
		}
	}
}

func errorsAs(err error, target interface{}) bool {
	switch t := target.(type) {
	case **kierrors.NotKiRepo:
		if e, ok := err.(*kierrors.NotKiRepo); ok {
			*t = e
			return true
		}
	case **kierrors.MissingFile:
		if e, ok := err.(*kierrors.MissingFile); ok {
			*t = e
			return true
		}
	}
	return false
}
