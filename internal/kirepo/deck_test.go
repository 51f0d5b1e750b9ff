package kirepo

import (
	"path/filepath"
	"testing"
)

func TestDeckPath(t *testing.T) {
	got := DeckPath("/root", "Japanese::Vocab::Verbs")
	want := filepath.Join("/root", "Japanese", "Vocab", "Verbs")
	if got != want {
		t.Errorf("DeckPath = %q, want %q", got, want)
	}
}

func TestDeckPathStripsLeadingDots(t *testing.T) {
	got := DeckPath("/root", "..hidden::Normal")
	want := filepath.Join("/root", "hidden", "Normal")
	if got != want {
		t.Errorf("DeckPath = %q, want %q", got, want)
	}
}

func TestDeckPathAllDotsCollapsesToUnderscore(t *testing.T) {
	got := DeckPath("/root", "...")
	want := filepath.Join("/root", "_")
	if got != want {
		t.Errorf("DeckPath = %q, want %q", got, want)
	}
}

func TestDeckName(t *testing.T) {
	dirPath := filepath.Join("/root", "Japanese", "Vocab")
	name, err := DeckName("/root", dirPath)
	if err != nil {
		t.Fatalf("DeckName: %v", err)
	}
	if name != "Japanese::Vocab" {
		t.Errorf("DeckName = %q", name)
	}
}

func TestDeckNameAtRoot(t *testing.T) {
	name, err := DeckName("/root", "/root")
	if err != nil {
		t.Fatalf("DeckName: %v", err)
	}
	if name != "" {
		t.Errorf("DeckName = %q, want empty", name)
	}
}

func TestDeckAncestors(t *testing.T) {
	got := DeckAncestors("A::B::C")
	want := []string{"A", "A::B", "A::B::C"}
	if len(got) != len(want) {
		t.Fatalf("DeckAncestors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DeckAncestors[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDeckAncestorsSingleLevel(t *testing.T) {
	got := DeckAncestors("Default")
	if len(got) != 1 || got[0] != "Default" {
		t.Errorf("DeckAncestors = %v", got)
	}
}
