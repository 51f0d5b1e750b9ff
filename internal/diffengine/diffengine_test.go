package diffengine

import (
	"testing"

	"github.com/kiproject/ki/internal/vcs"
)

func TestDefaultIgnore(t *testing.T) {
	cases := map[string]bool{
		".ki":                          true,
		".ki/config":                   true,
		"Default/README.md":            true,
		"Default/notetypes-manifest.json": true,
		".gitignore":                   true,
		"Default/Some Note.md":         false,
		"Default/image.png":            true,
	}
	for path, want := range cases {
		if got := DefaultIgnore(path); got != want {
			t.Errorf("DefaultIgnore(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestClassifyBasicKinds(t *testing.T) {
	entries := []vcs.DiffEntry{
		{Kind: vcs.Added, Path: "Default/new.md"},
		{Kind: vcs.Deleted, Path: "Default/gone.md"},
		{Kind: vcs.Modified, Path: "Default/changed.md"},
		{Kind: vcs.Added, Path: "Default/README.md"}, // ignored
	}
	deltas, err := Classify(entries, nil, nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(deltas) != 3 {
		t.Fatalf("deltas = %+v, want 3", deltas)
	}
	if deltas[0].Kind != KindAddedNote || deltas[0].Path != "Default/new.md" {
		t.Errorf("deltas[0] = %+v", deltas[0])
	}
	if deltas[1].Kind != KindDeletedNote {
		t.Errorf("deltas[1] = %+v", deltas[1])
	}
	if deltas[2].Kind != KindModifiedNote {
		t.Errorf("deltas[2] = %+v", deltas[2])
	}
}

func TestClassifyTooManyEntries(t *testing.T) {
	entries := make([]vcs.DiffEntry, maxDeltaEntries+1)
	for i := range entries {
		entries[i] = vcs.DiffEntry{Kind: vcs.Modified, Path: "Default/a.md"}
	}
	_, err := Classify(entries, nil, nil)
	if err == nil {
		t.Fatal("expected an error exceeding maxDeltaEntries")
	}
}

func TestClassifyRenameSameNid(t *testing.T) {
	entries := []vcs.DiffEntry{
		{Kind: vcs.Renamed, OldPath: "Default/old.md", Path: "Default/new.md", Similarity: 95},
	}
	nidOf := func(path string) (int64, bool) { return 42, true }
	deltas, err := Classify(entries, nil, nidOf)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(deltas) != 1 || deltas[0].Kind != KindRenamedNote || deltas[0].OldPath != "Default/old.md" {
		t.Fatalf("deltas = %+v", deltas)
	}
}

func TestClassifyRenameMismatchedNidSplits(t *testing.T) {
	entries := []vcs.DiffEntry{
		{Kind: vcs.Renamed, OldPath: "Default/old.md", Path: "Default/new.md", Similarity: 95},
	}
	nidOf := func(path string) (int64, bool) {
		if path == "Default/old.md" {
			return 1, true
		}
		return 2, true
	}
	deltas, err := Classify(entries, nil, nidOf)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas = %+v, want a split into 2", deltas)
	}
	if deltas[0].Kind != KindDeletedNote || deltas[0].Path != "Default/old.md" {
		t.Errorf("deltas[0] = %+v", deltas[0])
	}
	if deltas[1].Kind != KindAddedNote || deltas[1].Path != "Default/new.md" {
		t.Errorf("deltas[1] = %+v", deltas[1])
	}
}

func TestClassifyRenameOneSideIgnored(t *testing.T) {
	entries := []vcs.DiffEntry{
		{Kind: vcs.Renamed, OldPath: "Default/README.md", Path: "Default/new.md", Similarity: 60},
	}
	deltas, err := Classify(entries, nil, nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(deltas) != 1 || deltas[0].Kind != KindAddedNote || deltas[0].Path != "Default/new.md" {
		t.Fatalf("deltas = %+v, want only the added note", deltas)
	}
}

func TestClassifyRenameBothSidesIgnored(t *testing.T) {
	entries := []vcs.DiffEntry{
		{Kind: vcs.Renamed, OldPath: "Default/README.md", Path: "Other/README.md", Similarity: 99},
	}
	deltas, err := Classify(entries, nil, nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(deltas) != 0 {
		t.Fatalf("deltas = %+v, want none", deltas)
	}
}

func TestClassifyCustomIgnore(t *testing.T) {
	entries := []vcs.DiffEntry{
		{Kind: vcs.Added, Path: "skip-me.md"},
		{Kind: vcs.Added, Path: "keep-me.md"},
	}
	ignore := func(path string) bool { return path == "skip-me.md" }
	deltas, err := Classify(entries, ignore, nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(deltas) != 1 || deltas[0].Path != "keep-me.md" {
		t.Fatalf("deltas = %+v", deltas)
	}
}
