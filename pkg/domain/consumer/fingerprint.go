package consumer

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

type sha256Fingerprinter struct{}

// NewFingerprinter hashes job inputs with SHA-256: parameters over
// the job spec and workflow document, workspace over every regular
// file's relative path and content in walk order.
func NewFingerprinter() Fingerprinter {
	return sha256Fingerprinter{}
}

func (sha256Fingerprinter) Parameters(jobSpec string, workflowJSON string) (string, error) {
	h := sha256.New()
	io.WriteString(h, jobSpec)
	h.Write([]byte{0})
	io.WriteString(h, workflowJSON)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (sha256Fingerprinter) Workspace(path string) (string, error) {
	h := sha256.New()
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		io.WriteString(h, rel)
		h.Write([]byte{0})

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		h.Write([]byte{0})
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
