package testutil

import (
	"plot-go/internal/encryption"
)

// NewTestEncryptor returns a deterministic encryptor that frames data
// instead of encrypting it.
func NewTestEncryptor() *encryption.TestEncryptor {
	return encryption.NewTestEncryptor()
}
