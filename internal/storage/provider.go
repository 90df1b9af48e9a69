// Package storage defines the durable note store used by the server.
package storage

import (
	"context"
	"regexp"

	"github.com/makepost/corenote/internal/models"
)

// Provider persists note versions as "{dir}/{createdAt}.txt" objects.
type Provider interface {
	// List returns every stored version. Order is undefined.
	List(ctx context.Context) ([]models.Note, error)
	// Write stores the version, replacing any previous content.
	Write(ctx context.Context, n models.Note) error
	// Delete removes the version. Deleting a missing version is not an error.
	Delete(ctx context.Context, n models.Note) error
}

var versionFileRe = regexp.MustCompile(`^\d+\.txt$`)

// IsVersionFile reports whether a base name looks like a stored version.
func IsVersionFile(name string) bool {
	return versionFileRe.MatchString(name)
}
