// Package models defines the domain types for corenote.
package models

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// DefaultDir is used when the first line of a note yields no usable directory.
const DefaultDir = "untitled"

// Note is one immutable version of a plain-text note. Edits produce a new
// Note with a later CreatedAt in the same Dir.
type Note struct {
	CreatedAt int64  `json:"createdAt"`
	Dir       string `json:"dir"`
	Value     string `json:"value"`
}

var (
	keyRe      = regexp.MustCompile(`^(.+)/(\d+)\.txt$`)
	dotSeqRe   = regexp.MustCompile(`^\.+|\.+$|\.+[\\/]+|[\\/]+\.+`)
	multiSepRe = regexp.MustCompile(`/{2,}`)
)

// Key returns the storage key of the note: "{dir}/{createdAt}.txt".
func (n Note) Key() string {
	return Key(n.Dir, n.CreatedAt)
}

// Key builds a storage key from its parts.
func Key(dir string, createdAt int64) string {
	return dir + "/" + strconv.FormatInt(createdAt, 10) + ".txt"
}

// ParseKey splits a storage key into dir and createdAt.
// ok is false for keys that do not name a note version.
func ParseKey(key string) (dir string, createdAt int64, ok bool) {
	m := keyRe.FindStringSubmatch(key)
	if m == nil {
		return "", 0, false
	}
	ts, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return m[1], ts, true
}

// DeriveDir returns the directory of a note from the first line of its value,
// with dot sequences at either end or next to a separator removed.
func DeriveDir(value string) string {
	line, _, _ := strings.Cut(value, "\n")
	line = strings.TrimRight(line, "\r")
	line = strings.ToValidUTF8(strings.ReplaceAll(line, "\x00", ""), "")

	// Stripping can expose a new dot sequence.
	for {
		next := dotSeqRe.ReplaceAllString(line, "")
		if next == line {
			break
		}
		line = next
	}

	line = multiSepRe.ReplaceAllString(line, "/")
	line = strings.Trim(line, "/")
	if line == "" || strings.HasPrefix(line, ".") || strings.HasSuffix(line, ".") {
		return DefaultDir
	}
	return line
}

// SortNewestFirst orders notes by descending CreatedAt, ties by Dir.
func SortNewestFirst(notes []Note) {
	slices.SortStableFunc(notes, func(a, b Note) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Dir, b.Dir)
	})
}

// InDir returns the notes of one directory, keeping their order.
func InDir(notes []Note, dir string) []Note {
	out := []Note{}
	for _, n := range notes {
		if n.Dir == dir {
			out = append(out, n)
		}
	}
	return out
}

// Dirs returns the distinct directories in order of first appearance.
func Dirs(notes []Note) []string {
	seen := make(map[string]struct{}, len(notes))
	var out []string
	for _, n := range notes {
		if _, ok := seen[n.Dir]; ok {
			continue
		}
		seen[n.Dir] = struct{}{}
		out = append(out, n.Dir)
	}
	return out
}

// Newest returns the newest note of dir, or false when dir has no notes.
func Newest(notes []Note, dir string) (Note, bool) {
	var best Note
	found := false
	for _, n := range notes {
		if n.Dir == dir && (!found || n.CreatedAt > best.CreatedAt) {
			best = n
			found = true
		}
	}
	return best, found
}
