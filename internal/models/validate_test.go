package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/makepost/corenote/internal/apperr"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		note Note
		ok   bool
	}{
		{"valid", Note{CreatedAt: 1, Dir: "a", Value: "a"}, true},
		{"nested dir", Note{CreatedAt: 1, Dir: "a/b c", Value: ""}, true},
		{"dot inside name", Note{CreatedAt: 1, Dir: "v1.2", Value: "x"}, true},
		{"zero createdAt", Note{CreatedAt: 0, Dir: "a"}, false},
		{"negative createdAt", Note{CreatedAt: -5, Dir: "a"}, false},
		{"empty dir", Note{CreatedAt: 1, Dir: ""}, false},
		{"leading dot", Note{CreatedAt: 1, Dir: ".a"}, false},
		{"trailing dot", Note{CreatedAt: 1, Dir: "a."}, false},
		{"traversal", Note{CreatedAt: 1, Dir: "a/../b"}, false},
		{"backslash traversal", Note{CreatedAt: 1, Dir: `a\..\b`}, false},
		{"leading slash", Note{CreatedAt: 1, Dir: "/a"}, false},
		{"empty component", Note{CreatedAt: 1, Dir: "a//b"}, false},
		{"nul in dir", Note{CreatedAt: 1, Dir: "a\x00b"}, false},
		{"invalid utf8 dir", Note{CreatedAt: 1, Dir: "a\xffb"}, false},
		{"nul in value", Note{CreatedAt: 1, Dir: "a", Value: "x\x00"}, false},
		{"invalid utf8 value", Note{CreatedAt: 1, Dir: "a", Value: "\xff"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.note.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, apperr.ErrInvalidNote) {
					t.Errorf("error %v does not wrap ErrInvalidNote", err)
				}
			}
		})
	}
}

func TestValidateAll_NamesIndex(t *testing.T) {
	err := ValidateAll([]Note{
		{CreatedAt: 1, Dir: "a"},
		{CreatedAt: 1, Dir: ""},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(err.Error(), "note 1: ") {
		t.Errorf("error = %q", err)
	}
	if !errors.Is(err, apperr.ErrInvalidNote) {
		t.Error("error does not wrap ErrInvalidNote")
	}
	if err := ValidateAll(nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}
