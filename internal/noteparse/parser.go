package noteparse

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/kiproject/ki/internal/kierrors"
)

// line is one physical line of a note file, 1-indexed, without its
// terminating newline.
type line struct {
	no   int
	text string
}

// splitLines splits src on LF, tracking 1-based line numbers. A trailing
// empty line from a final "\n" is dropped, matching how a text editor
// presents the file.
func splitLines(src string) []line {
	parts := strings.Split(src, "\n")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	out := make([]line, len(parts))
	for i, p := range parts {
		out[i] = line{no: i + 1, text: p}
	}
	return out
}

// Parse parses the full text of a note file into a FlatNote. file is used
// only to annotate errors (ParseError.File).
func Parse(file, src string) (*FlatNote, error) {
	lines := splitLines(src)
	p := &parser{file: file, lines: lines}
	return p.parseFile()
}

type parser struct {
	file  string
	lines []line
	pos   int // index into p.lines
}

func (p *parser) cur() (line, bool) {
	if p.pos >= len(p.lines) {
		return line{}, false
	}
	return p.lines[p.pos], true
}

func (p *parser) errAt(ln line, col int, token string, expected []string) error {
	return &kierrors.ParseError{
		File: p.file, Line: ln.no, Col: col, Token: token,
		Expected: expected, Context: ln.text,
	}
}

func (p *parser) errEOF(expected []string) error {
	lastLine := 0
	if len(p.lines) > 0 {
		lastLine = p.lines[len(p.lines)-1].no
	}
	return &kierrors.ParseError{
		File: p.file, Line: lastLine + 1, Col: 1, Token: "EOF",
		Expected: expected, Context: "",
	}
}

func (p *parser) parseFile() (*FlatNote, error) {
	title, err := p.parseTitleLine()
	if err != nil {
		return nil, err
	}
	nid, err := p.parseKeyedInt("nid: ")
	if err != nil {
		return nil, err
	}
	model, err := p.parseKeyedText("model: ", "MODEL")
	if err != nil {
		return nil, err
	}
	deck, err := p.parseKeyedText("deck: ", "DECK")
	if err != nil {
		return nil, err
	}
	tags, err := p.parseTagsLine()
	if err != nil {
		return nil, err
	}
	markdown, err := p.parseMarkdownLine()
	if err != nil {
		return nil, err
	}
	if err := p.expectBlankLine(); err != nil {
		return nil, err
	}
	fields, err := p.parseFields()
	if err != nil {
		return nil, err
	}

	return &FlatNote{
		Title: title, Nid: nid, Model: model, Deck: deck,
		Tags: sortedTagCopy(tags), Markdown: markdown, Fields: fields,
	}, nil
}

// parseTitleLine requires exactly "## " (two hashes, one space) followed by
// free text with no forbidden characters.
func (p *parser) parseTitleLine() (string, error) {
	ln, ok := p.cur()
	if !ok {
		return "", p.errEOF([]string{"## TITLE"})
	}
	text := ln.text

	if strings.HasPrefix(text, "### ") || strings.HasPrefix(text, "###") {
		return "", p.errAt(ln, 1, "###", []string{"## TITLE"})
	}
	if !strings.HasPrefix(text, "## ") {
		if strings.HasPrefix(text, "#") {
			// A single "# " header (or any other hash run) is reported with
			// the whole line as the offending token, since the grammar has
			// no alternative production once the sentinel hash is wrong.
			return "", p.errAt(ln, 1, text+"\n", []string{"## TITLE"})
		}
		return "", p.errAt(ln, 1, text, []string{"## TITLE"})
	}
	title := text[3:]
	if r, idx, bad := hasForbiddenControl(title); bad {
		return "", p.errAt(ln, 4+idx, controlRuneName(r), []string{"TITLE char"})
	}
	if strings.ContainsAny(title, "\"") {
		return "", p.errAt(ln, 4, "\"", []string{"TITLE char"})
	}
	p.pos++
	return title, nil
}

func (p *parser) parseKeyedInt(prefix string) (int64, error) {
	ln, ok := p.cur()
	if !ok {
		return 0, p.errEOF([]string{prefix + "INT"})
	}
	if !strings.HasPrefix(ln.text, prefix) {
		return 0, p.errAt(ln, 1, ln.text, []string{prefix + "INT"})
	}
	val := strings.TrimPrefix(ln.text, prefix)
	n, err := parseInt64(val)
	if err != nil {
		return 0, p.errAt(ln, len(prefix)+1, val, []string{"INT"})
	}
	p.pos++
	return n, nil
}

func (p *parser) parseKeyedText(prefix, class string) (string, error) {
	ln, ok := p.cur()
	if !ok {
		return "", p.errEOF([]string{prefix + class})
	}
	if !strings.HasPrefix(ln.text, prefix) {
		return "", p.errAt(ln, 1, ln.text, []string{prefix + class})
	}
	val := strings.TrimPrefix(ln.text, prefix)
	if r, idx, bad := hasForbiddenControl(val); bad {
		return "", p.errAt(ln, len(prefix)+1+idx, controlRuneName(r), []string{class + " char"})
	}
	if strings.ContainsAny(val, "\"") {
		return "", p.errAt(ln, len(prefix)+1+strings.Index(val, "\""), "\"", []string{class + " char"})
	}
	p.pos++
	return val, nil
}

func (p *parser) parseTagsLine() ([]string, error) {
	ln, ok := p.cur()
	if !ok {
		return nil, p.errEOF([]string{"tags:"})
	}
	if !strings.HasPrefix(ln.text, "tags:") {
		return nil, p.errAt(ln, 1, ln.text, []string{"tags:"})
	}
	rest := strings.TrimPrefix(ln.text, "tags:")
	rest = strings.TrimPrefix(rest, " ")
	if rest == "" {
		p.pos++
		return nil, nil
	}
	raw := strings.Split(rest, ",")
	tags := make([]string, 0, len(raw))
	col := len("tags: ") + 1
	for _, t := range raw {
		t = strings.TrimPrefix(t, " ")
		if t == "" {
			return nil, p.errAt(ln, col, ",", []string{"TAG"})
		}
		if err := validateTagChars(p.file, t); err != nil {
			pe := err.(*kierrors.ParseError)
			pe.Line = ln.no
			return nil, pe
		}
		tags = append(tags, t)
		col += len(t) + 2
	}
	p.pos++
	return tags, nil
}

func (p *parser) parseMarkdownLine() (bool, error) {
	ln, ok := p.cur()
	if !ok {
		return false, p.errEOF([]string{"markdown:"})
	}
	if !strings.HasPrefix(ln.text, "markdown: ") {
		return false, p.errAt(ln, 1, ln.text, []string{"markdown: "})
	}
	val := strings.TrimPrefix(ln.text, "markdown: ")
	switch val {
	case "true":
		p.pos++
		return true, nil
	case "false":
		p.pos++
		return false, nil
	default:
		return false, p.errAt(ln, len("markdown: ")+1, val, []string{"true", "false"})
	}
}

func (p *parser) expectBlankLine() error {
	ln, ok := p.cur()
	if !ok {
		return p.errEOF([]string{"NEWLINE"})
	}
	if ln.text != "" {
		return p.errAt(ln, 1, ln.text, []string{"NEWLINE"})
	}
	p.pos++
	return nil
}

func (p *parser) parseFields() (*orderedmap.OrderedMap[string, string], error) {
	fields := orderedmap.New[string, string]()
	if _, ok := p.cur(); !ok {
		return nil, p.errEOF([]string{"### FIELDNAME"})
	}
	for {
		if _, ok := p.cur(); !ok {
			break
		}
		name, err := p.parseFieldHeader()
		if err != nil {
			return nil, err
		}
		body := p.parseFieldBody()
		if bad, idx, r := bodyForbidden(body); bad {
			return nil, p.errAt(line{no: 0}, idx, controlRuneName(r), []string{"field body char"})
		}
		fields.Set(name, body)
	}
	return fields, nil
}

// parseFieldHeader consumes exactly one "### NAME" line.
func (p *parser) parseFieldHeader() (string, error) {
	ln, ok := p.cur()
	if !ok {
		return "", p.errEOF([]string{"### FIELDNAME"})
	}
	if strings.HasPrefix(ln.text, "## ") && !strings.HasPrefix(ln.text, "### ") {
		return "", p.errAt(ln, 1, "##", []string{"### FIELDNAME"})
	}
	if !strings.HasPrefix(ln.text, "### ") {
		return "", p.errAt(ln, 1, ln.text, []string{"### FIELDNAME"})
	}
	name := strings.TrimPrefix(ln.text, "### ")
	if name == "" {
		return "", p.errAt(ln, 5, "", []string{"FIELDNAME"})
	}
	if strings.HasPrefix(name, "#") || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "^") {
		return "", p.errAt(ln, 5, string(name[0]), []string{"FIELDNAME"})
	}
	if r, idx, bad := hasForbiddenControl(name); bad {
		return "", p.errAt(ln, 5+idx, controlRuneName(r), []string{"FIELDNAME char"})
	}
	if strings.ContainsAny(name, "\"") {
		return "", p.errAt(ln, 5, "\"", []string{"FIELDNAME char"})
	}
	p.pos++
	return name, nil
}

// parseFieldBody consumes lines up to (not including) the next "### " header
// or EOF and joins them back with LF, preserving a trailing newline the way
// the original file had one (Emit always terminates a body with "\n" when
// there is at least one line, matching this reconstruction).
func (p *parser) parseFieldBody() string {
	var b strings.Builder
	for {
		ln, ok := p.cur()
		if !ok {
			break
		}
		if strings.HasPrefix(ln.text, "### ") {
			break
		}
		b.WriteString(ln.text)
		b.WriteString("\n")
		p.pos++
	}
	return b.String()
}

func bodyForbidden(body string) (bool, int, rune) {
	if r, idx, bad := hasForbiddenControl(body); bad {
		return true, idx, r
	}
	return false, 0, 0
}
