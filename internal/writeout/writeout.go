// Package writeout is the write-out engine: it enumerates every note in a
// collection and lays it out as the working tree's "## Title / nid: ..."
// files, one per note, grouped into deck directories, each carrying a
// generated README.md and a notetypes-manifest.json scoped to the notetypes
// that deck's notes actually use, rather than a single flat root manifest.
// Notes are written in ascending nid order and decks in sorted name order.
// A deck's manifest lists only the notetypes of notes filed directly in that
// deck; it does not include the notetypes of its sub-decks.
package writeout

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/yuin/goldmark"

	"github.com/kiproject/ki/internal/coladapter"
	"github.com/kiproject/ki/internal/kirepo"
	"github.com/kiproject/ki/internal/noteparse"
)

// Result summarizes one write-out pass, returned so callers (the sync
// driver's clone/pull paths) can log what was produced.
type Result struct {
	NotesWritten int
	Decks        []string
	RootManifest kirepo.NotetypeManifest
}

// Run writes every note in col out under root, organized by deck. root must
// already exist; Run creates deck subdirectories as needed.
func Run(ctx context.Context, root string, col coladapter.Collection) (*Result, error) {
	notes, err := col.FindNotes(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("writeout: list notes: %w", err)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Nid < notes[j].Nid })

	byDeck := make(map[string][]*coladapter.Note)
	var deckOrder []string
	for _, n := range notes {
		if _, ok := byDeck[n.Deck]; !ok {
			deckOrder = append(deckOrder, n.Deck)
		}
		byDeck[n.Deck] = append(byDeck[n.Deck], n)
	}
	sort.Strings(deckOrder)

	rootManifest := kirepo.NotetypeManifest{}
	result := &Result{Decks: deckOrder, RootManifest: rootManifest}

	for _, deck := range deckOrder {
		deckNotes := byDeck[deck]
		deckDir := kirepo.DeckPath(root, deck)
		if err := os.MkdirAll(deckDir, 0o755); err != nil {
			return nil, fmt.Errorf("writeout: create deck dir %s: %w", deckDir, err)
		}

		usedStems := make(map[string]int)
		deckNotetypeIDs := map[int64]bool{}

		for _, n := range deckNotes {
			nt, err := col.Notetypes().ByID(ctx, n.NotetypeID)
			if err != nil {
				return nil, fmt.Errorf("writeout: notetype %d for note %d: %w", n.NotetypeID, n.Nid, err)
			}
			rootManifest[nt.ID] = toKirepoNotetype(nt)
			deckNotetypeIDs[nt.ID] = true

			flat, err := BuildFlatNote(n, nt)
			if err != nil {
				return nil, fmt.Errorf("writeout: note %d: %w", n.Nid, err)
			}
			filename := NoteFilename(flat.Title, usedStems)
			path := kirepo.DeckPath(root, deck)
			notePath := joinPath(path, filename)
			if err := os.WriteFile(notePath, []byte(noteparse.Emit(flat)), 0o644); err != nil {
				return nil, fmt.Errorf("writeout: write %s: %w", notePath, err)
			}
			result.NotesWritten++
		}

		ids := make([]int64, 0, len(deckNotetypeIDs))
		for id := range deckNotetypeIDs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if err := kirepo.WriteNotetypeManifest(ManifestPath(deckDir), rootManifest.Subset(ids)); err != nil {
			return nil, fmt.Errorf("writeout: deck manifest for %s: %w", deck, err)
		}
		if err := writeReadme(deckDir, deck, deckNotes); err != nil {
			return nil, fmt.Errorf("writeout: readme for %s: %w", deck, err)
		}
	}

	return result, nil
}

func toKirepoNotetype(nt *coladapter.Notetype) *kirepo.Notetype {
	fields := make([]kirepo.Field, len(nt.Fields))
	for i, f := range nt.Fields {
		fields[i] = kirepo.Field{Name: f.Name, Ord: f.Ord}
	}
	return &kirepo.Notetype{ID: nt.ID, Name: nt.Name, Fields: fields, SortF: nt.SortOrd}
}

// BuildFlatNote projects a collection note into the grammar's in-memory
// form, ready for noteparse.Emit. Exported so the sync driver can re-render
// a single note file after assigning it a fresh nid, without duplicating
// the sort-field/title projection this package already does for the full
// write-out pass.
func BuildFlatNote(n *coladapter.Note, nt *coladapter.Notetype) (*noteparse.FlatNote, error) {
	if len(n.Fields) != len(nt.Fields) {
		return nil, coladapter.ErrFieldCountMismatch
	}
	fields := orderedmap.New[string, string]()
	ordered := append([]coladapter.Field(nil), nt.Fields...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ord < ordered[j].Ord })
	for _, f := range ordered {
		fields.Set(f.Name, n.Fields[f.Ord])
	}

	title := n.Fields[nt.SortOrd]
	if len(title) > 80 {
		title = title[:80]
	}
	title = strings.ReplaceAll(title, "\n", " ")

	return &noteparse.FlatNote{
		Title:    title,
		Nid:      n.Nid,
		Model:    nt.Name,
		Deck:     n.Deck,
		Tags:     n.Tags,
		Markdown: false,
		Fields:   fields,
	}, nil
}

func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// writeReadme generates a short per-deck summary and validates it renders
// as well-formed Markdown via goldmark before writing it.
func writeReadme(deckDir, deck string, notes []*coladapter.Note) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", deckNameOrRoot(deck))
	fmt.Fprintf(&b, "%d note(s) in this deck.\n", len(notes))

	md := goldmark.New()
	var discard strings.Builder
	if err := md.Convert([]byte(b.String()), &discard); err != nil {
		return fmt.Errorf("render readme: %w", err)
	}
	return os.WriteFile(ReadmePath(deckDir), []byte(b.String()), 0o644)
}

func deckNameOrRoot(deck string) string {
	if deck == "" {
		return "(root)"
	}
	return deck
}
