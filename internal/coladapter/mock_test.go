package coladapter

import (
	"context"
	"testing"
)

func TestMockCollectionAddAndGetNote(t *testing.T) {
	ctx := context.Background()
	m := NewMockCollection()
	nt := m.AddNotetype(&Notetype{Name: "Basic", Fields: []Field{{Name: "Front", Ord: 0}, {Name: "Back", Ord: 1}}})

	n, err := m.NewNote(ctx, nt.ID)
	if err != nil {
		t.Fatalf("NewNote: %v", err)
	}
	n.Fields[0] = "q"
	n.Fields[1] = "a"
	n.Deck = "Default"
	if err := m.AddNote(ctx, n); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	got, err := m.GetNote(ctx, n.Nid)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Fields[0] != "q" || got.Fields[1] != "a" {
		t.Errorf("GetNote fields = %v", got.Fields)
	}
}

func TestMockCollectionGetNoteNotFound(t *testing.T) {
	m := NewMockCollection()
	if _, err := m.GetNote(context.Background(), 999); err != ErrNoteNotFound {
		t.Errorf("GetNote = %v, want ErrNoteNotFound", err)
	}
}

func TestMockCollectionNewNoteUnknownNotetype(t *testing.T) {
	m := NewMockCollection()
	if _, err := m.NewNote(context.Background(), 999); err != ErrNotetypeNotFound {
		t.Errorf("NewNote = %v, want ErrNotetypeNotFound", err)
	}
}

func TestMockCollectionUpdateNoteMissing(t *testing.T) {
	m := NewMockCollection()
	if err := m.UpdateNote(context.Background(), &Note{Nid: 42}); err != ErrNoteNotFound {
		t.Errorf("UpdateNote = %v, want ErrNoteNotFound", err)
	}
}

func TestMockCollectionRemoveNotes(t *testing.T) {
	ctx := context.Background()
	m := NewMockCollection()
	nt := m.AddNotetype(&Notetype{Name: "Basic", Fields: []Field{{Name: "Front"}}})
	n, _ := m.NewNote(ctx, nt.ID)
	_ = m.AddNote(ctx, n)

	if err := m.RemoveNotes(ctx, []int64{n.Nid}); err != nil {
		t.Fatalf("RemoveNotes: %v", err)
	}
	if _, err := m.GetNote(ctx, n.Nid); err != ErrNoteNotFound {
		t.Errorf("expected note removed, got %v", err)
	}
}

func TestMockCollectionFindNotesFiltersByDeck(t *testing.T) {
	ctx := context.Background()
	m := NewMockCollection()
	nt := m.AddNotetype(&Notetype{Name: "Basic", Fields: []Field{{Name: "Front"}}})
	a, _ := m.NewNote(ctx, nt.ID)
	a.Deck = "A"
	_ = m.AddNote(ctx, a)
	b, _ := m.NewNote(ctx, nt.ID)
	b.Deck = "B"
	_ = m.AddNote(ctx, b)

	found, err := m.FindNotes(ctx, "A")
	if err != nil {
		t.Fatalf("FindNotes: %v", err)
	}
	if len(found) != 1 || found[0].Nid != a.Nid {
		t.Errorf("FindNotes(A) = %v", found)
	}

	all, err := m.FindNotes(ctx, "")
	if err != nil {
		t.Fatalf("FindNotes: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("FindNotes(\"\") = %v, want 2", all)
	}
}

func TestMockNotetypesByNameAndEnsureUnique(t *testing.T) {
	ctx := context.Background()
	m := NewMockCollection()
	m.AddNotetype(&Notetype{Name: "Basic", Fields: []Field{{Name: "Front"}}})

	nts := m.Notetypes()
	nt, err := nts.ByName(ctx, "Basic")
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if nt.Name != "Basic" {
		t.Errorf("ByName = %+v", nt)
	}

	if err := nts.EnsureNameUnique(ctx, "Basic"); err != ErrNotetypeNameTaken {
		t.Errorf("EnsureNameUnique(taken) = %v", err)
	}
	if err := nts.EnsureNameUnique(ctx, "Cloze"); err != nil {
		t.Errorf("EnsureNameUnique(fresh) = %v", err)
	}
}

func TestMockNotetypesFieldMapAndSortIdx(t *testing.T) {
	ctx := context.Background()
	m := NewMockCollection()
	nt := m.AddNotetype(&Notetype{
		Name:    "Basic",
		Fields:  []Field{{Name: "Front", Ord: 0}, {Name: "Back", Ord: 1}},
		SortOrd: 1,
	})

	nts := m.Notetypes()
	fm, err := nts.FieldMap(ctx, nt.ID)
	if err != nil {
		t.Fatalf("FieldMap: %v", err)
	}
	if fm["Front"] != 0 || fm["Back"] != 1 {
		t.Errorf("FieldMap = %v", fm)
	}

	idx, err := nts.SortIdx(ctx, nt.ID)
	if err != nil {
		t.Fatalf("SortIdx: %v", err)
	}
	if idx != 1 {
		t.Errorf("SortIdx = %d, want 1", idx)
	}
}

func TestMockDecksCreatesHierarchy(t *testing.T) {
	ctx := context.Background()
	m := NewMockCollection()
	decks := m.Decks()

	id, err := decks.ID(ctx, "Geography::Europe")
	if err != nil {
		t.Fatalf("ID: %v", err)
	}

	if _, ok := m.DeckIDs["Geography"]; !ok {
		t.Error("expected ancestor deck \"Geography\" to be created")
	}
	if _, ok := m.DeckIDs["Geography::Europe"]; !ok {
		t.Error("expected leaf deck to be created")
	}

	name, err := decks.NameByID(ctx, id)
	if err != nil {
		t.Fatalf("NameByID: %v", err)
	}
	if name != "Geography::Europe" {
		t.Errorf("NameByID = %q", name)
	}
}

func TestMockDecksIDIsStable(t *testing.T) {
	ctx := context.Background()
	m := NewMockCollection()
	decks := m.Decks()
	first, _ := decks.ID(ctx, "Default")
	second, _ := decks.ID(ctx, "Default")
	if first != second {
		t.Errorf("ID not stable: %d vs %d", first, second)
	}
}

func TestFieldsCheck(t *testing.T) {
	nt := &Notetype{Fields: []Field{{Name: "Front"}, {Name: "Back"}}}
	ok := &Note{Fields: []string{"a", "b"}}
	if err := FieldsCheck(ok, nt); err != nil {
		t.Errorf("FieldsCheck(matching) = %v", err)
	}

	bad := &Note{Fields: []string{"a"}}
	if err := FieldsCheck(bad, nt); err != ErrFieldCountMismatch {
		t.Errorf("FieldsCheck(mismatch) = %v, want ErrFieldCountMismatch", err)
	}
}
