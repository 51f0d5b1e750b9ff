package noteparse

import (
	"strings"
	"testing"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/kiproject/ki/internal/kierrors"
)

func mustParse(t *testing.T, src string) *FlatNote {
	t.Helper()
	fn, err := Parse("note.md", src)
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	return fn
}

func TestParseBasicNote(t *testing.T) {
	src := "## Capital of France\n" +
		"nid: 1700000000001\n" +
		"model: Basic\n" +
		"deck: Geography::Europe\n" +
		"tags: geo, capitals\n" +
		"markdown: false\n" +
		"\n" +
		"### Front\n" +
		"What is the capital of France?\n" +
		"### Back\n" +
		"Paris\n"

	fn := mustParse(t, src)

	if fn.Title != "Capital of France" {
		t.Errorf("Title = %q", fn.Title)
	}
	if fn.Nid != 1700000000001 {
		t.Errorf("Nid = %d", fn.Nid)
	}
	if fn.Model != "Basic" {
		t.Errorf("Model = %q", fn.Model)
	}
	if fn.Deck != "Geography::Europe" {
		t.Errorf("Deck = %q", fn.Deck)
	}
	if want := []string{"geo", "capitals"}; !equalStrings(fn.Tags, want) {
		t.Errorf("Tags = %v, want %v", fn.Tags, want)
	}
	if fn.Markdown {
		t.Errorf("Markdown = true, want false")
	}
	names := fn.FieldNames()
	if want := []string{"Front", "Back"}; !equalStrings(names, want) {
		t.Errorf("field order = %v, want %v", names, want)
	}
	front, _ := fn.Fields.Get("Front")
	if front != "What is the capital of France?\n" {
		t.Errorf("Front field = %q", front)
	}
	back, _ := fn.Fields.Get("Back")
	if back != "Paris\n" {
		t.Errorf("Back field = %q", back)
	}
}

func TestParseNoTags(t *testing.T) {
	src := "## Title\n" +
		"nid: 1\n" +
		"model: Basic\n" +
		"deck: Default\n" +
		"tags:\n" +
		"markdown: true\n" +
		"\n" +
		"### Front\n" +
		"x\n"

	fn := mustParse(t, src)
	if len(fn.Tags) != 0 {
		t.Errorf("Tags = %v, want empty", fn.Tags)
	}
	if !fn.Markdown {
		t.Errorf("Markdown = false, want true")
	}
}

func TestEmitParseRoundTrip(t *testing.T) {
	fields := orderedmap.New[string, string]()
	fields.Set("Front", "question\n")
	fields.Set("Back", "answer\n")
	fn := &FlatNote{
		Title:    "Round Trip",
		Nid:      42,
		Model:    "Basic",
		Deck:     "Default",
		Tags:     []string{"a", "b"},
		Markdown: false,
		Fields:   fields,
	}

	emitted := Emit(fn)
	reparsed, err := Parse("note.md", emitted)
	if err != nil {
		t.Fatalf("Parse(Emit(fn)): %v", err)
	}

	if reparsed.Title != fn.Title || reparsed.Nid != fn.Nid || reparsed.Model != fn.Model ||
		reparsed.Deck != fn.Deck || reparsed.Markdown != fn.Markdown {
		t.Fatalf("round trip mismatch: got %+v", reparsed)
	}
	if !equalStrings(reparsed.Tags, fn.Tags) {
		t.Errorf("Tags round trip: got %v, want %v", reparsed.Tags, fn.Tags)
	}
	if !equalStrings(reparsed.FieldNames(), fn.FieldNames()) {
		t.Errorf("field names round trip: got %v, want %v", reparsed.FieldNames(), fn.FieldNames())
	}
	for _, name := range fn.FieldNames() {
		want, _ := fn.Fields.Get(name)
		got, _ := reparsed.Fields.Get(name)
		if got != want {
			t.Errorf("field %q round trip: got %q, want %q", name, got, want)
		}
	}
}

func TestParseMissingTitleSentinel(t *testing.T) {
	_, err := Parse("note.md", "not a title\nnid: 1\n")
	var perr *kierrors.ParseError
	if !asParseError(err, &perr) {
		t.Fatalf("expected *kierrors.ParseError, got %v (%T)", err, err)
	}
	if perr.Line != 1 {
		t.Errorf("Line = %d, want 1", perr.Line)
	}
}

func TestParseTripleHashRejectedAsTitle(t *testing.T) {
	_, err := Parse("note.md", "### Field\nnid: 1\n")
	var perr *kierrors.ParseError
	if !asParseError(err, &perr) {
		t.Fatalf("expected *kierrors.ParseError, got %v (%T)", err, err)
	}
	if perr.Token != "###" {
		t.Errorf("Token = %q, want %q", perr.Token, "###")
	}
}

func TestParseBadNid(t *testing.T) {
	src := "## Title\nnid: not-a-number\n"
	_, err := Parse("note.md", src)
	var perr *kierrors.ParseError
	if !asParseError(err, &perr) {
		t.Fatalf("expected *kierrors.ParseError, got %v (%T)", err, err)
	}
	if perr.Line != 2 {
		t.Errorf("Line = %d, want 2", perr.Line)
	}
}

func TestParseMissingBlankLineBeforeFields(t *testing.T) {
	src := "## Title\n" +
		"nid: 1\n" +
		"model: Basic\n" +
		"deck: Default\n" +
		"tags:\n" +
		"markdown: false\n" +
		"### Front\n" +
		"x\n"
	_, err := Parse("note.md", src)
	var perr *kierrors.ParseError
	if !asParseError(err, &perr) {
		t.Fatalf("expected *kierrors.ParseError, got %v (%T)", err, err)
	}
	if perr.Line != 7 {
		t.Errorf("Line = %d, want 7", perr.Line)
	}
}

func TestParseEmptyTagRejected(t *testing.T) {
	src := "## Title\n" +
		"nid: 1\n" +
		"model: Basic\n" +
		"deck: Default\n" +
		"tags: a,,b\n" +
		"markdown: false\n" +
		"\n" +
		"### Front\n" +
		"x\n"
	_, err := Parse("note.md", src)
	var perr *kierrors.ParseError
	if !asParseError(err, &perr) {
		t.Fatalf("expected *kierrors.ParseError, got %v (%T)", err, err)
	}
	if perr.Line != 5 {
		t.Errorf("Line = %d, want 5", perr.Line)
	}
}

func TestParseEOFMidHeader(t *testing.T) {
	_, err := Parse("note.md", "## Title\nnid: 1\n")
	var perr *kierrors.ParseError
	if !asParseError(err, &perr) {
		t.Fatalf("expected *kierrors.ParseError, got %v (%T)", err, err)
	}
	if perr.Token != "EOF" {
		t.Errorf("Token = %q, want EOF", perr.Token)
	}
}

func TestValidateTagsRejectsSpaces(t *testing.T) {
	err := ValidateTags("note.md", []string{"has space"})
	if err == nil {
		t.Fatal("expected error for tag containing a space")
	}
}

func TestValidateTagsAcceptsValid(t *testing.T) {
	if err := ValidateTags("note.md", []string{"geo", "capitals::europe"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func asParseError(err error, target **kierrors.ParseError) bool {
	pe, ok := err.(*kierrors.ParseError)
	if ok {
		*target = pe
	}
	return ok
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSplitLinesDropsTrailingEmpty(t *testing.T) {
	lines := splitLines("a\nb\n")
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if lines[0].text != "a" || lines[0].no != 1 {
		t.Errorf("lines[0] = %+v", lines[0])
	}
	if lines[1].text != "b" || lines[1].no != 2 {
		t.Errorf("lines[1] = %+v", lines[1])
	}
}

func TestEmitFieldSeparation(t *testing.T) {
	fields := orderedmap.New[string, string]()
	fields.Set("Front", "a\n")
	fn := &FlatNote{Title: "T", Nid: 1, Model: "M", Deck: "D", Fields: fields}
	out := Emit(fn)
	if !strings.Contains(out, "### Front\na\n") {
		t.Errorf("Emit output missing expected field block: %q", out)
	}
}
