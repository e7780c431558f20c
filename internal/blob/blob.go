// Package blob stores uploaded file payloads and issues time-limited signed
// download URLs.
package blob

import (
	"context"
	"io"
	"time"
)

// SignedURLTTL is how long a download link stays valid.
const SignedURLTTL = 7 * 24 * time.Hour

// Stored describes a persisted blob.
type Stored struct {
	Key         string
	URL         string
	Name        string
	ContentType string
	Size        int64
}

// Store persists file payloads.
type Store interface {
	// Save writes the payload and returns its signed download URL.
	Save(ctx context.Context, roomID, fileName, contentType string, r io.Reader, size int64) (Stored, error)

	// Open returns the payload for a previously stored key.
	Open(key string) (io.ReadSeekCloser, error)

	// VerifyURL checks the signature and expiry of a download request.
	VerifyURL(key, expiry, signature string) bool
}
