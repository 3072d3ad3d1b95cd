// Package fileid derives stable identifiers from file content, so a file dropped twice is recognised.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

const prefix = "sha256:"

// ContentID returns the content hash of everything read from r.
func ContentID(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(h.Sum(nil)), nil
}

// FileContentID returns the content hash of the file at path. Renaming or moving the file
// does not change it.
func FileContentID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ContentID(f)
}
