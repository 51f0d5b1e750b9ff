// Package convert defines the seam between a note field's two on-disk
// representations: the HTML Anki stores in the collection, and the
// Markdown a note file holds when its "markdown: true" flag is set. The
// actual HTML<->Markdown transformation is out of scope for ki itself (the
// collection side is expected to run its own HTML tidying pass — see
// internal/writeout's external-tidy-binary batching), so this package only
// declares the interface the sync driver programs against plus a
// goldmark-backed implementation of the render-and-validate half: turning
// Markdown into HTML is exercised here, the inverse is left to the
// external tidy/convert step writeout shells out to.
package convert

import (
	"bytes"

	"github.com/yuin/goldmark"
)

// FieldConverter turns a note field's Markdown source into the HTML Anki
// stores, and reports whether a round trip through HTML rendering is even
// well-formed (used as a cheap validity check before a field is written
// into the collection).
type FieldConverter interface {
	MarkdownToHTML(src string) (string, error)
}

// Goldmark is the default FieldConverter, backed by goldmark's CommonMark
// renderer (goldmark was previously an unwired dependency; ki is the first
// caller that exercises it).
type Goldmark struct {
	md goldmark.Markdown
}

// NewGoldmark constructs a FieldConverter with goldmark's default parser.
func NewGoldmark() *Goldmark {
	return &Goldmark{md: goldmark.New()}
}

func (g *Goldmark) MarkdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var _ FieldConverter = (*Goldmark)(nil)
