// Package noteparse implements the note-file grammar: parsing a "## Title /
// nid: / model: / deck: / tags: / markdown: / ### field" text file into a
// FlatNote, and emitting a FlatNote back to that exact byte representation
// for notes a user never touched.
//
// The grammar is hand-rolled (scanner + recursive-descent parser over
// lines), not built on a third-party grammar engine: this is a bespoke
// format with no general-purpose parser to reach for. The positional-
// diagnostic shape below (line, column, offending token, expected-token
// set, trailing context) mirrors hashicorp/hcl's hcl.Diagnostic.
package noteparse

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/kiproject/ki/internal/kierrors"
)

// FlatNote is the in-memory representation of a parsed note file.
type FlatNote struct {
	Title    string
	Nid      int64
	Model    string
	Deck     string
	Tags     []string
	Markdown bool
	Fields   *orderedmap.OrderedMap[string, string]
}

// FieldNames returns the field names in declaration order.
func (f *FlatNote) FieldNames() []string {
	names := make([]string, 0, f.Fields.Len())
	for pair := f.Fields.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

const (
	controlForbidden = "\x00\x07\x08\x0b\x0c" // NUL BEL BS VT FF
)

func hasForbiddenControl(s string) (rune, int, bool) {
	for i, r := range s {
		if strings.ContainsRune(controlForbidden, r) {
			return r, i, true
		}
	}
	return 0, -1, false
}

// controlRuneName returns a human label for a forbidden control rune, used
// in parse error messages.
func controlRuneName(r rune) string {
	switch r {
	case '\x00':
		return "NUL"
	case '\x07':
		return "BEL"
	case '\x08':
		return "BS"
	case '\x0b':
		return "VT"
	case '\x0c':
		return "FF"
	default:
		return fmt.Sprintf("U+%04X", r)
	}
}

// Emit renders a FlatNote back to its canonical textual form. For a note
// that has never been hand-edited, re-parsing this output must reproduce an
// identical FlatNote (the grammar is reversible).
func Emit(n *FlatNote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", n.Title)
	fmt.Fprintf(&b, "nid: %d\n", n.Nid)
	fmt.Fprintf(&b, "model: %s\n", n.Model)
	fmt.Fprintf(&b, "deck: %s\n", n.Deck)
	b.WriteString("tags:")
	for i, t := range n.Tags {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(" ")
		b.WriteString(t)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "markdown: %t\n", n.Markdown)
	b.WriteString("\n")
	for pair := n.Fields.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(&b, "### %s\n", pair.Key)
		b.WriteString(pair.Value)
	}
	return b.String()
}

// sortedTagCopy returns a defensively-copied, order-preserved tag slice.
func sortedTagCopy(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

// ValidateTags re-checks tag syntax outside the parser, e.g. after a
// programmatic edit (the sync driver setting tags from the collection on
// pull). Returns the first violation found, or nil.
func ValidateTags(file string, tags []string) error {
	for _, t := range tags {
		if t == "" {
			return &kierrors.ParseError{File: file, Token: "", Expected: []string{"TAG"}, Context: "empty tag in list"}
		}
		if err := validateTagChars(file, t); err != nil {
			return err
		}
	}
	return nil
}

func validateTagChars(file, tag string) error {
	for _, r := range tag {
		if r == '"' || r == ' ' || r == '　' || strings.ContainsRune(controlForbidden, r) {
			return &kierrors.ParseError{
				File: file, Token: string(r), Expected: []string{"TAG char"},
				Context: fmt.Sprintf("forbidden character in tag %q", tag),
			}
		}
	}
	return nil
}

// sortFieldIndex returns a stable field-name -> declared ordinal mapping,
// mirroring how notetypes.field_map exposes ordinals (see coladapter).
func sortFieldIndex(names []string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

// stableSortStrings is used by callers that need deterministic iteration
// over a name set (e.g. manifest generation) without importing sort at every
// call site.
func stableSortStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
