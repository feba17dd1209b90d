package app

import (
	"bytes"
	"fmt"
	"io"

	"plot-go/internal/encryption"
	"plot-go/internal/export"
	"plot-go/internal/plot"
	"plot-go/internal/workbook"
)

// PassphraseFunc supplies the passphrase for the private key when a sealed
// bundle has to be opened.
type PassphraseFunc func() (string, error)

// Export writes a bundle of both stores to w. With seal set the bundle is
// encrypted to the configured public key.
func (a *PlotApp) Export(w io.Writer, seal bool) error {
	var enc plot.Encryptor
	if seal {
		if !a.encryptor.IsConfigured() {
			return encryption.ErrNotConfigured
		}
		enc = a.encryptor
	}
	return a.bundles.Export(w, enc)
}

// Import replaces both stores with the bundle read from r. Sealed bundles
// are opened with the private key, unlocked by the passphrase from pass.
func (a *PlotApp) Import(r io.Reader, pass PassphraseFunc) (result export.Result, err error) {
	if err := a.persistOperation(""); err != nil {
		return export.Result{}, err
	}
	defer a.track(&err)

	data, err := io.ReadAll(r)
	if err != nil {
		return export.Result{}, fmt.Errorf("reading bundle: %w", err)
	}
	if encryption.IsSealed(data) {
		if pass == nil {
			return export.Result{}, fmt.Errorf("bundle is sealed and no passphrase was given")
		}
		passphrase, err := pass()
		if err != nil {
			return export.Result{}, fmt.Errorf("reading passphrase: %w", err)
		}
		opener, err := a.encryptor.Unlock(passphrase)
		if err != nil {
			return export.Result{}, err
		}
		if data, err = export.Open(bytes.NewReader(data), opener); err != nil {
			return export.Result{}, err
		}
	}
	return a.importBundle(data)
}

// ImportWorkbook converts a planning spreadsheet into a bundle and imports
// it. The warnings list rows that could not be matched to a known plant.
func (a *PlotApp) ImportWorkbook(r io.Reader) (result export.Result, warnings []string, err error) {
	if err := a.persistOperation(""); err != nil {
		return export.Result{}, nil, err
	}
	defer a.track(&err)

	wb, err := workbook.NewImporter(a.catalog, a.clock, a.idgen, a.logger).Read(r)
	if err != nil {
		return export.Result{}, nil, err
	}
	b, err := wb.Bundle(a.clock.Now())
	if err != nil {
		return export.Result{}, wb.Warnings, err
	}
	data, err := b.Encode()
	if err != nil {
		return export.Result{}, wb.Warnings, err
	}
	result, err = a.importBundle(data)
	return result, wb.Warnings, err
}

func (a *PlotApp) importBundle(data []byte) (export.Result, error) {
	result, err := a.bundles.Import(data)
	if err != nil {
		return result, err
	}
	if err := a.resetReplica(); err != nil {
		return result, err
	}
	return result, nil
}

// SetupKeys generates the key pair used to seal exports.
func (a *PlotApp) SetupKeys(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}
