// Package assets stores template backgrounds and rendered certificates on the
// local filesystem under the data directory.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var MimeToExt = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// MimeToSourceType classifies accepted background uploads.
var MimeToSourceType = map[string]string{
	"image/png":       "image",
	"image/jpeg":      "image",
	"image/gif":       "image",
	"image/webp":      "image",
	"application/pdf": "pdf",
}

const tmpSuffix = ".tmp"

type Store struct {
	Root string
}

func New(root string) (*Store, error) {
	for _, dir := range []string{"templates", "certificates"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	return &Store{Root: root}, nil
}

func TemplatePath(templateID, ext string) string {
	return filepath.Join("templates", templateID+ext)
}

func CertificatePath(templateID, certID, ext string) string {
	return filepath.Join("certificates", templateID, certID+ext)
}

// Put writes data to rel atomically: readers see the old file, no file, or
// the complete new file.
func (s *Store) Put(rel string, data []byte) error {
	full, err := s.abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(full), filepath.Base(full)+".*"+tmpSuffix)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", rel, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", rel, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", rel, err)
	}
	return nil
}

func (s *Store) Get(rel string) ([]byte, error) {
	full, err := s.abs(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (s *Store) Open(rel string) (*os.File, error) {
	full, err := s.abs(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (s *Store) Remove(rel string) error {
	full, err := s.abs(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) Exists(rel string) bool {
	full, err := s.abs(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

// SweepTemp deletes interrupted writes older than age and returns how many
// files were removed.
func (s *Store) SweepTemp(age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	n := 0
	err := filepath.WalkDir(s.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, tmpSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if os.Remove(path) == nil {
			n++
		}
		return nil
	})
	return n, err
}

// abs resolves rel under Root and rejects paths that escape it.
func (s *Store) abs(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("asset path %q escapes store", rel)
	}
	return filepath.Join(s.Root, clean), nil
}

func SHA256Bytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func SHA256Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
