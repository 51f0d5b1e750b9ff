package coladapter

import (
	"context"
	"sort"
	"strings"
)

// MockCollection implements Collection with in-memory data for testing. All
// state is stored in plain maps and slices that test setup can populate
// directly.
type MockCollection struct {
	Notes         map[int64]*Note
	NotetypesByID map[int64]*Notetype
	DeckIDs       map[string]int64

	nextNid      int64
	nextNotetype int64
	nextDeck     int64
}

// NewMockCollection creates an empty mock collection.
func NewMockCollection() *MockCollection {
	return &MockCollection{
		Notes:         make(map[int64]*Note),
		NotetypesByID: make(map[int64]*Notetype),
		DeckIDs:       make(map[string]int64),
		nextNid:       1,
		nextNotetype:  1,
		nextDeck:      1,
	}
}

// AddNotetype registers a notetype directly, assigning an id if none set.
func (m *MockCollection) AddNotetype(nt *Notetype) *Notetype {
	if nt.ID == 0 {
		nt.ID = m.nextNotetype
		m.nextNotetype++
	}
	m.NotetypesByID[nt.ID] = nt
	return nt
}

func (m *MockCollection) Notetypes() Notetypes { return mockNotetypes{m} }
func (m *MockCollection) Decks() Decks         { return mockDecks{m} }

func (m *MockCollection) Close() error { return nil }

func (m *MockCollection) FindNotes(_ context.Context, deck string) ([]*Note, error) {
	var out []*Note
	for _, n := range m.Notes {
		if deck == "" || n.Deck == deck {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nid < out[j].Nid })
	return out, nil
}

func (m *MockCollection) GetNote(_ context.Context, nid int64) (*Note, error) {
	n, ok := m.Notes[nid]
	if !ok {
		return nil, ErrNoteNotFound
	}
	return n, nil
}

func (m *MockCollection) NewNote(_ context.Context, notetypeID int64) (*Note, error) {
	nt, ok := m.NotetypesByID[notetypeID]
	if !ok {
		return nil, ErrNotetypeNotFound
	}
	nid := m.nextNid
	m.nextNid++
	return &Note{
		Nid:          nid,
		NotetypeID:   nt.ID,
		NotetypeName: nt.Name,
		Fields:       make([]string, len(nt.Fields)),
	}, nil
}

func (m *MockCollection) AddNote(_ context.Context, n *Note) error {
	if n.Nid == 0 {
		n.Nid = m.nextNid
		m.nextNid++
	}
	m.Notes[n.Nid] = n
	return nil
}

func (m *MockCollection) UpdateNote(_ context.Context, n *Note) error {
	if _, ok := m.Notes[n.Nid]; !ok {
		return ErrNoteNotFound
	}
	m.Notes[n.Nid] = n
	return nil
}

func (m *MockCollection) RemoveNotes(_ context.Context, nids []int64) error {
	for _, nid := range nids {
		delete(m.Notes, nid)
	}
	return nil
}

type mockNotetypes struct{ m *MockCollection }

func (mn mockNotetypes) ByName(_ context.Context, name string) (*Notetype, error) {
	for _, nt := range mn.m.NotetypesByID {
		if nt.Name == name {
			return nt, nil
		}
	}
	return nil, ErrNotetypeNotFound
}

func (mn mockNotetypes) ByID(_ context.Context, id int64) (*Notetype, error) {
	nt, ok := mn.m.NotetypesByID[id]
	if !ok {
		return nil, ErrNotetypeNotFound
	}
	return nt, nil
}

func (mn mockNotetypes) IDForName(ctx context.Context, name string) (int64, error) {
	nt, err := mn.ByName(ctx, name)
	if err != nil {
		return 0, err
	}
	return nt.ID, nil
}

func (mn mockNotetypes) EnsureNameUnique(ctx context.Context, name string) error {
	if _, err := mn.ByName(ctx, name); err == nil {
		return ErrNotetypeNameTaken
	}
	return nil
}

func (mn mockNotetypes) FieldMap(ctx context.Context, notetypeID int64) (map[string]int, error) {
	nt, err := mn.ByID(ctx, notetypeID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(nt.Fields))
	for _, f := range nt.Fields {
		out[f.Name] = f.Ord
	}
	return out, nil
}

func (mn mockNotetypes) SortIdx(ctx context.Context, notetypeID int64) (int, error) {
	nt, err := mn.ByID(ctx, notetypeID)
	if err != nil {
		return 0, err
	}
	return nt.SortOrd, nil
}

func (mn mockNotetypes) Add(_ context.Context, nt *Notetype) error {
	mn.m.AddNotetype(nt)
	return nil
}

func (mn mockNotetypes) All(_ context.Context) ([]*Notetype, error) {
	out := make([]*Notetype, 0, len(mn.m.NotetypesByID))
	for _, nt := range mn.m.NotetypesByID {
		out = append(out, nt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockDecks struct{ m *MockCollection }

func (md mockDecks) ID(_ context.Context, name string) (int64, error) {
	if id, ok := md.m.DeckIDs[name]; ok {
		return id, nil
	}
	// Ensure every ancestor level exists too, matching the real adapter's
	// deck-creation semantics.
	levels := strings.Split(name, "::")
	for i := range levels {
		sub := strings.Join(levels[:i+1], "::")
		if _, ok := md.m.DeckIDs[sub]; !ok {
			md.m.DeckIDs[sub] = md.m.nextDeck
			md.m.nextDeck++
		}
	}
	return md.m.DeckIDs[name], nil
}

func (md mockDecks) NameByID(_ context.Context, id int64) (string, error) {
	for name, did := range md.m.DeckIDs {
		if did == id {
			return name, nil
		}
	}
	return "", ErrNotetypeNotFound
}

var _ Collection = (*MockCollection)(nil)
