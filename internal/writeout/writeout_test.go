package writeout

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiproject/ki/internal/coladapter"
	"github.com/kiproject/ki/internal/kirepo"
)

func buildMockCollection(t *testing.T) *coladapter.MockCollection {
	t.Helper()
	m := coladapter.NewMockCollection()
	nt := m.AddNotetype(&coladapter.Notetype{
		Name:    "Basic",
		Fields:  []coladapter.Field{{Name: "Front", Ord: 0}, {Name: "Back", Ord: 1}},
		SortOrd: 0,
	})

	ctx := context.Background()
	n1, err := m.NewNote(ctx, nt.ID)
	if err != nil {
		t.Fatal(err)
	}
	n1.Deck = "Default"
	n1.Fields = []string{"What is 2+2?", "4"}
	if err := m.AddNote(ctx, n1); err != nil {
		t.Fatal(err)
	}

	n2, err := m.NewNote(ctx, nt.ID)
	if err != nil {
		t.Fatal(err)
	}
	n2.Deck = "Geography"
	n2.Fields = []string{"Capital of France", "Paris"}
	if err := m.AddNote(ctx, n2); err != nil {
		t.Fatal(err)
	}

	return m
}

func TestRunWritesNotesGroupedByDeck(t *testing.T) {
	root := t.TempDir()
	m := buildMockCollection(t)

	result, err := Run(context.Background(), root, m)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.NotesWritten != 2 {
		t.Errorf("NotesWritten = %d, want 2", result.NotesWritten)
	}
	if len(result.Decks) != 2 {
		t.Errorf("Decks = %v, want 2 entries", result.Decks)
	}

	defaultDeck := filepath.Join(root, "Default")
	entries, err := os.ReadDir(defaultDeck)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", defaultDeck, err)
	}
	var noteFile string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".md") && e.Name() != "README.md" {
			noteFile = e.Name()
		}
	}
	if noteFile == "" {
		t.Fatal("expected a note .md file in the Default deck directory")
	}

	content, err := os.ReadFile(filepath.Join(defaultDeck, noteFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "nid:") || !strings.Contains(string(content), "### Front") {
		t.Errorf("note content missing expected grammar sections: %q", content)
	}
}

func TestRunWritesReadmeAndManifestPerDeck(t *testing.T) {
	root := t.TempDir()
	m := buildMockCollection(t)

	if _, err := Run(context.Background(), root, m); err != nil {
		t.Fatalf("Run: %v", err)
	}

	geoDeck := filepath.Join(root, "Geography")
	if _, err := os.Stat(ReadmePath(geoDeck)); err != nil {
		t.Errorf("expected README.md in Geography deck: %v", err)
	}

	manifest, err := kirepo.ReadNotetypeManifest(ManifestPath(geoDeck))
	if err != nil {
		t.Fatalf("ReadNotetypeManifest: %v", err)
	}
	if len(manifest) != 1 {
		t.Errorf("manifest = %+v, want exactly 1 notetype", manifest)
	}
}

func TestRunFieldCountMismatch(t *testing.T) {
	root := t.TempDir()
	m := coladapter.NewMockCollection()
	nt := m.AddNotetype(&coladapter.Notetype{
		Name:   "Basic",
		Fields: []coladapter.Field{{Name: "Front", Ord: 0}, {Name: "Back", Ord: 1}},
	})
	ctx := context.Background()
	n, err := m.NewNote(ctx, nt.ID)
	if err != nil {
		t.Fatal(err)
	}
	n.Deck = "Default"
	n.Fields = []string{"only one field"}
	if err := m.AddNote(ctx, n); err != nil {
		t.Fatal(err)
	}

	if _, err := Run(ctx, root, m); err == nil {
		t.Fatal("expected an error for a field-count mismatch")
	}
}
