// Package coladapter is the boundary between ki and an Anki collection
// database. It defines the Collection interface the sync driver programs
// against, a modernc.org/sqlite-backed implementation that reads and writes
// the real .anki2 schema, and an in-memory MockCollection for tests: one
// seam between real storage and test doubles, with the interface itself
// carrying none of either side's implementation details.
package coladapter

import (
	"context"
	"errors"
)

// Note is ki's view of a collection note: enough to compare against a
// working-tree FlatNote and to write either direction.
type Note struct {
	Nid          int64
	Guid         string
	NotetypeID   int64
	NotetypeName string
	Deck         string
	Tags         []string
	Fields       []string // positional, ordinal-ordered
}

// Field is one field of a notetype.
type Field struct {
	Name string
	Ord  int
}

// Notetype is a collection notetype (called a "model" in the .anki2 schema).
type Notetype struct {
	ID      int64
	Name    string
	Fields  []Field
	SortOrd int
}

var (
	// ErrNoteNotFound is returned by GetNote for an unknown id.
	ErrNoteNotFound = errors.New("coladapter: note not found")
	// ErrNotetypeNotFound is returned by notetype lookups for an unknown name or id.
	ErrNotetypeNotFound = errors.New("coladapter: notetype not found")
	// ErrNotetypeNameTaken is returned by EnsureNameUnique.
	ErrNotetypeNameTaken = errors.New("coladapter: notetype name already in use")
	// ErrFieldCountMismatch is returned by FieldsCheck when a note's field
	// count doesn't match its notetype.
	ErrFieldCountMismatch = errors.New("coladapter: note field count does not match notetype")
)

// Notetypes is the notetype-management sub-interface: by-name and by-id
// lookup, name-uniqueness enforcement, field/ordinal maps, and registration
// of new notetypes.
type Notetypes interface {
	ByName(ctx context.Context, name string) (*Notetype, error)
	ByID(ctx context.Context, id int64) (*Notetype, error)
	IDForName(ctx context.Context, name string) (int64, error)
	EnsureNameUnique(ctx context.Context, name string) error
	FieldMap(ctx context.Context, notetypeID int64) (map[string]int, error)
	SortIdx(ctx context.Context, notetypeID int64) (int, error)
	Add(ctx context.Context, nt *Notetype) error
	All(ctx context.Context) ([]*Notetype, error)
}

// Decks is the deck-management sub-interface.
type Decks interface {
	// ID returns the id of the deck named name, creating it (and any
	// missing ancestor in a "::"-separated hierarchy) if absent.
	ID(ctx context.Context, name string) (int64, error)
	NameByID(ctx context.Context, id int64) (string, error)
}

// Collection is the full adapter surface the sync driver programs against.
type Collection interface {
	Notetypes() Notetypes
	Decks() Decks

	FindNotes(ctx context.Context, deck string) ([]*Note, error)
	GetNote(ctx context.Context, nid int64) (*Note, error)
	NewNote(ctx context.Context, notetypeID int64) (*Note, error)
	AddNote(ctx context.Context, n *Note) error
	UpdateNote(ctx context.Context, n *Note) error
	RemoveNotes(ctx context.Context, nids []int64) error

	// Close releases any resources (database handle, lock) held by the
	// adapter.
	Close() error
}

// FieldsCheck validates that n's field count matches its notetype's field
// count, the generic-purpose guard the grammar's "notetype mismatch" error
// is raised from.
func FieldsCheck(n *Note, nt *Notetype) error {
	if len(n.Fields) != len(nt.Fields) {
		return ErrFieldCountMismatch
	}
	return nil
}
