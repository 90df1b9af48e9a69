package models

import (
	"strings"
	"testing"
	"unicode"

	"pgregory.net/rapid"
)

func TestDeriveDir(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"Groceries\nmilk", "Groceries"},
		{"work//q3/plan\nbody", "work/q3/plan"},
		{"/a/b/", "a/b"},
		{"../etc", "etc"},
		{"a/../b", "a/b"},
		{"a/./.b", "ab"},
		{"notes/...", "notes"},
		{"...", DefaultDir},
		{"", DefaultDir},
		{"\nbody only", DefaultDir},
		{"title\r\nbody", "title"},
		{"v1.2 notes", "v1.2 notes"},
		{"a\x00b", "ab"},
	}
	for _, tt := range tests {
		if got := DeriveDir(tt.value); got != tt.want {
			t.Errorf("DeriveDir(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestDeriveDir_AlwaysValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		value := rapid.StringOf(rapid.RuneFrom([]rune{'.', '/', '\\', '\n', 'a', ' '}, unicode.Letter)).Draw(t, "value")
		dir := DeriveDir(value)
		n := Note{CreatedAt: 1, Dir: dir, Value: value}
		if err := n.Validate(); err != nil {
			t.Fatalf("DeriveDir(%q) = %q is invalid: %v", value, dir, err)
		}
		if strings.Contains(dir, "\n") {
			t.Fatalf("dir %q spans lines", dir)
		}
	})
}

func TestKeyRoundTrip(t *testing.T) {
	n := Note{CreatedAt: 1700000000000, Dir: "work/plan"}
	if n.Key() != "work/plan/1700000000000.txt" {
		t.Fatalf("Key = %q", n.Key())
	}
	dir, ts, ok := ParseKey(n.Key())
	if !ok || dir != n.Dir || ts != n.CreatedAt {
		t.Errorf("ParseKey = %q, %d, %v", dir, ts, ok)
	}
}

func TestParseKey_Rejects(t *testing.T) {
	for _, key := range []string{"", "a.txt", "a/b.txt", "a/1.md", "/1.txt", "a/99999999999999999999.txt"} {
		if _, _, ok := ParseKey(key); ok {
			t.Errorf("ParseKey(%q) accepted", key)
		}
	}
}

func TestSortNewestFirst(t *testing.T) {
	notes := []Note{
		{CreatedAt: 1, Dir: "a"},
		{CreatedAt: 3, Dir: "b"},
		{CreatedAt: 3, Dir: "a"},
		{CreatedAt: 2, Dir: "c"},
	}
	SortNewestFirst(notes)
	want := []Note{
		{CreatedAt: 3, Dir: "a"},
		{CreatedAt: 3, Dir: "b"},
		{CreatedAt: 2, Dir: "c"},
		{CreatedAt: 1, Dir: "a"},
	}
	for i := range want {
		if notes[i] != want[i] {
			t.Fatalf("notes[%d] = %+v, want %+v", i, notes[i], want[i])
		}
	}
}

func TestDirsInDirNewest(t *testing.T) {
	notes := []Note{
		{CreatedAt: 5, Dir: "b"},
		{CreatedAt: 4, Dir: "a"},
		{CreatedAt: 3, Dir: "b"},
	}

	dirs := Dirs(notes)
	if len(dirs) != 2 || dirs[0] != "b" || dirs[1] != "a" {
		t.Errorf("Dirs = %v", dirs)
	}

	if got := InDir(notes, "b"); len(got) != 2 || got[0].CreatedAt != 5 || got[1].CreatedAt != 3 {
		t.Errorf("InDir = %+v", got)
	}
	if got := InDir(notes, "none"); got == nil || len(got) != 0 {
		t.Errorf("InDir(none) = %#v, want empty slice", got)
	}

	if n, ok := Newest(notes, "b"); !ok || n.CreatedAt != 5 {
		t.Errorf("Newest = %+v, %v", n, ok)
	}
	if _, ok := Newest(notes, "none"); ok {
		t.Error("Newest found a note in an empty dir")
	}
}
