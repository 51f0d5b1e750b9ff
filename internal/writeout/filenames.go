package writeout

import (
	"fmt"
	"path/filepath"

	"github.com/gosimple/slug"
)

// slugify turns a note title into a filesystem-safe stem: NFKD-fold,
// strip anything slug doesn't consider a word character, collapse
// whitespace/punctuation runs to single dashes, lowercase. Uses the same
// gosimple/slug library a note-to-Markdown-file tool takes for its own
// note-to-filename mapping.
func slugify(title string) string {
	s := slug.Make(title)
	if s == "" {
		return "note"
	}
	return s
}

// NoteFilename returns the note-file name for a title, disambiguating
// against the names already used in the same deck directory by appending
// "-2", "-3", ... the first time a stem collides. used records the stems
// already claimed and is mutated as a side effect.
func NoteFilename(title string, used map[string]int) string {
	stem := slugify(title)
	n := used[stem]
	used[stem] = n + 1
	if n == 0 {
		return stem + ".md"
	}
	return fmt.Sprintf("%s-%d.md", stem, n+1)
}

// ReadmePath and ManifestPath name the two generated per-deck files that
// sit alongside a deck's note files.
func ReadmePath(deckDir string) string   { return filepath.Join(deckDir, "README.md") }
func ManifestPath(deckDir string) string { return filepath.Join(deckDir, "notetypes-manifest.json") }
