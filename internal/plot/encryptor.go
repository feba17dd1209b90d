package plot

import "io"

// Encryptor seals export bundles so they can be kept somewhere untrusted.
// Sealing uses the public key only; opening requires a passphrase to unlock
// the private key, producing an Opener for the session.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `plot config init --keys`.
	// Generates a key pair, stores the public key in plaintext, and encrypts
	// the private key with the provided passphrase.
	Setup(passphrase string) error

	// Seal encrypts data read from r and writes ciphertext to w.
	Seal(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase and returns an
	// Opener that can decrypt bundles for the duration of the session.
	Unlock(passphrase string) (Opener, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// Opener holds an unlocked private key in memory. It is never written to disk.
type Opener interface {
	// Open decrypts data read from r and writes plaintext to w.
	Open(r io.Reader, w io.Writer) error
}
