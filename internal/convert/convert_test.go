package convert

import (
	"strings"
	"testing"
)

func TestGoldmarkMarkdownToHTML(t *testing.T) {
	g := NewGoldmark()
	html, err := g.MarkdownToHTML("# Hello\n\nSome **bold** text.\n")
	if err != nil {
		t.Fatalf("MarkdownToHTML: %v", err)
	}
	if !strings.Contains(html, "<h1>Hello</h1>") {
		t.Errorf("missing rendered heading: %q", html)
	}
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Errorf("missing rendered bold text: %q", html)
	}
}

func TestGoldmarkEmptyInput(t *testing.T) {
	g := NewGoldmark()
	html, err := g.MarkdownToHTML("")
	if err != nil {
		t.Fatalf("MarkdownToHTML: %v", err)
	}
	if html != "" {
		t.Errorf("MarkdownToHTML(\"\") = %q, want empty", html)
	}
}

func TestGoldmarkList(t *testing.T) {
	g := NewGoldmark()
	html, err := g.MarkdownToHTML("- one\n- two\n")
	if err != nil {
		t.Fatalf("MarkdownToHTML: %v", err)
	}
	if !strings.Contains(html, "<ul>") || !strings.Contains(html, "<li>one</li>") {
		t.Errorf("missing rendered list: %q", html)
	}
}

func TestFieldConverterInterfaceSatisfiedByGoldmark(t *testing.T) {
	var _ FieldConverter = NewGoldmark()
}
