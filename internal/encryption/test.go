package encryption

import (
	"bytes"
	"fmt"
	"io"

	"plot-go/internal/plot"
)

var testHeader = []byte("PLOTSEAL\x00")

// TestEncryptor frames data with a fixed header instead of encrypting it.
// It is deterministic, so tests can compare sealed bytes directly.
type TestEncryptor struct {
	// Passphrase, when set, is the only one Unlock accepts.
	Passphrase string
}

var _ plot.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.Passphrase = passphrase
	return nil
}

func (e *TestEncryptor) Seal(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	_, err := io.Copy(w, r)
	return err
}

func (e *TestEncryptor) Unlock(passphrase string) (plot.Opener, error) {
	if e.Passphrase != "" && passphrase != e.Passphrase {
		return nil, fmt.Errorf("unlocking private key: wrong passphrase")
	}
	return testOpener{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

type testOpener struct{}

func (testOpener) Open(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil || !bytes.Equal(header, testHeader) {
		return fmt.Errorf("not a sealed bundle")
	}
	_, err := io.Copy(w, r)
	return err
}
