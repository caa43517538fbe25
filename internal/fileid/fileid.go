// Package fileid derives deterministic document IDs for files dropped into
// the uploads directory.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "upload:"

// UploadDocID returns a stable document ID for the given absolute path. The
// same path always yields the same ID, so re-dropping a file re-ingests the
// same document instead of creating a duplicate.
func UploadDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}
