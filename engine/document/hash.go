package document

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

const hashBlockSize = 4096

// HashFile computes the content fingerprint used for duplicate detection.
// The digest streams the file in fixed-size blocks and depends only on the
// byte content, never the filename.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("document: open file for hashing: %w", err)
	}
	defer file.Close()
	digest := sha256.New()
	buf := make([]byte, hashBlockSize)
	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return "", fmt.Errorf("document: read file for hashing: %w", readErr)
		}
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
