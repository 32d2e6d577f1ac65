package entities

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

const (
	// MaxFileSize is the largest single attachment the bot accepts or sends
	MaxFileSize int64 = 50 << 20

	// MaxUserStorage caps the total size of attachments uploaded by one user
	MaxUserStorage int64 = 500 << 20
)

var (
	ErrFileTooLarge  = fmt.Errorf("file exceeds %d MB", MaxFileSize>>20)
	ErrQuotaExceeded = fmt.Errorf("storage quota of %d MB exceeded", MaxUserStorage>>20)
)

// CheckUpload validates an attachment of size bytes against the single file limit
// and the per-user quota given the bytes already used.
func CheckUpload(size, used int64) error {
	if size > MaxFileSize {
		return ErrFileTooLarge
	}
	if used+size > MaxUserStorage {
		return ErrQuotaExceeded
	}
	return nil
}
