// Package storage persists uploaded files under a local uploads tree.
//
// Files are partitioned by kind (images, materials, qrcode) and addressed by
// one canonical web path such as /uploads/images/<uuid>.png. The same path is
// stored in the database and mapped back to exactly one file on removal.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies an upload by its extension
type Kind string

const (
	KindImage    Kind = "images"
	KindMaterial Kind = "materials"
	KindQRCode   Kind = "qrcode"
)

const URLPrefix = "/uploads"

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrInvalidPath     = errors.New("path is outside the uploads tree")
)

var extensions = map[string]Kind{
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".gif":  KindImage,
	".zip":  KindMaterial,
	".rar":  KindMaterial,
	".7z":   KindMaterial,
}

// Local stores files on the local filesystem
type Local struct {
	root        string
	maxImage    int64
	maxMaterial int64
}

// NewLocal creates the uploads tree under root
func NewLocal(root string, maxImage, maxMaterial int64) (*Local, error) {
	for _, k := range []Kind{KindImage, KindMaterial, KindQRCode} {
		if err := os.MkdirAll(filepath.Join(root, string(k)), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir %s: %w", k, err)
		}
	}
	return &Local{root: root, maxImage: maxImage, maxMaterial: maxMaterial}, nil
}

// Root returns the filesystem directory served under URLPrefix
func (l *Local) Root() string {
	return l.root
}

// Classify returns the kind for filename, or ErrUnsupportedType
func Classify(filename string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	kind, ok := extensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return kind, nil
}

// CheckSize enforces the ceiling configured for kind
func (l *Local) CheckSize(kind Kind, size int64) error {
	limit := l.maxImage
	if kind == KindMaterial {
		limit = l.maxMaterial
	}
	if size > limit {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, limit)
	}
	return nil
}

// Save writes src under a fresh name with ext and returns the canonical web path
func (l *Local) Save(kind Kind, ext string, src io.Reader) (string, error) {
	name := uuid.NewString() + strings.ToLower(ext)
	dst, err := os.Create(filepath.Join(l.root, string(kind), name))
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}

	return path.Join(URLPrefix, string(kind), name), nil
}

// SaveAs writes data under an explicit name, used for generated files
func (l *Local) SaveAs(kind Kind, name string, data []byte) (string, error) {
	if name != filepath.Base(name) {
		return "", ErrInvalidPath
	}
	if err := os.WriteFile(filepath.Join(l.root, string(kind), name), data, 0o644); err != nil {
		return "", err
	}
	return path.Join(URLPrefix, string(kind), name), nil
}

// Copy duplicates the file behind webPath and returns the new web path
func (l *Local) Copy(webPath string) (string, error) {
	src, err := l.Resolve(webPath)
	if err != nil {
		return "", err
	}
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()

	kind := Kind(filepath.Base(filepath.Dir(src)))
	return l.Save(kind, filepath.Ext(src), f)
}

// Remove deletes the file behind webPath. A missing file is not an error.
func (l *Local) Remove(webPath string) error {
	p, err := l.Resolve(webPath)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether the file behind webPath is present
func (l *Local) Exists(webPath string) bool {
	p, err := l.Resolve(webPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Resolve maps a canonical web path to its filesystem path
func (l *Local) Resolve(webPath string) (string, error) {
	clean := path.Clean("/" + webPath)
	rel, ok := strings.CutPrefix(clean, URLPrefix+"/")
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, webPath)
	}
	kind, name, ok := strings.Cut(rel, "/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, webPath)
	}
	switch Kind(kind) {
	case KindImage, KindMaterial, KindQRCode:
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, webPath)
	}
	return filepath.Join(l.root, kind, name), nil
}
