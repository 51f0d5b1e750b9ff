package kirepo

import (
	"path/filepath"
	"strings"
)

// deckSep is the separator a collection uses between levels of a deck
// hierarchy, e.g. "Japanese::Vocab::Verbs".
const deckSep = "::"

// DeckPath maps a colon-separated deck name to the working-tree directory
// that holds its notes: one path component per hierarchy level, with any
// component that starts with "." stripped of its leading dots so a deck
// level can never masquerade as a hidden directory.
func DeckPath(root string, deckName string) string {
	levels := strings.Split(deckName, deckSep)
	elems := make([]string, 0, len(levels)+1)
	elems = append(elems, root)
	for _, lvl := range levels {
		elems = append(elems, stripLeadingDots(lvl))
	}
	return filepath.Join(elems...)
}

// DeckName recovers the colon-separated deck name implied by a directory
// path relative to root, the inverse of DeckPath modulo the leading-dot
// stripping (which is lossy by design: a deck level that was entirely dots
// collapses to the same directory as one named "_").
func DeckName(root, dirPath string) (string, error) {
	rel, err := filepath.Rel(root, dirPath)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	parts := strings.Split(rel, string(filepath.Separator))
	return strings.Join(parts, deckSep), nil
}

func stripLeadingDots(s string) string {
	stripped := strings.TrimLeft(s, ".")
	if stripped == "" {
		return "_"
	}
	return stripped
}

// DeckAncestors returns every ancestor deck name of deckName, root-most
// first, e.g. "A::B::C" -> ["A", "A::B", "A::B::C"]. Used to ensure
// intermediate deck directories exist even when a note only names the
// leaf deck.
func DeckAncestors(deckName string) []string {
	levels := strings.Split(deckName, deckSep)
	out := make([]string, len(levels))
	for i := range levels {
		out[i] = strings.Join(levels[:i+1], deckSep)
	}
	return out
}
