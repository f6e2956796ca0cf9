// Package browser lists the folders and RAW files under a base directory
// and renders small previews for them.
package browser

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"photocrispy/internal/raw"
)

var ErrOutsideBase = errors.New("path is outside the browse directory")

type Entry struct {
	Name    string
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

type thumbKey struct {
	path    string
	size    int
	modTime time.Time
}

// PreviewFunc extracts an embedded preview, typically the JPEG a camera
// stores inside its RAW files.
type PreviewFunc func(path string) (image.Image, error)

type Option func(*Browser)

// WithPreview makes Thumbnail try preview before decoding the file itself.
func WithPreview(preview PreviewFunc) Option {
	return func(b *Browser) { b.preview = preview }
}

// Browser never navigates above Base.
type Browser struct {
	base    string
	current string
	preview PreviewFunc

	mu     sync.Mutex
	thumbs map[thumbKey]*image.NRGBA
}

func New(base string, opts ...Option) (*Browser, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", base, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	b := &Browser{
		base:    abs,
		current: abs,
		thumbs:  make(map[thumbKey]*image.NRGBA),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Browser) Base() string    { return b.base }
func (b *Browser) Current() string { return b.current }
func (b *Browser) CanGoUp() bool   { return b.current != b.base }

// Entries lists directories first, then RAW files, each group sorted by
// name without regard to case.
func (b *Browser) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(b.current)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !de.IsDir() && !raw.IsRawFile(name) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:    name,
			Path:    filepath.Join(b.current, name),
			IsDir:   de.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Enter moves into dir, given relative to Current or as an absolute path.
func (b *Browser) Enter(dir string) error {
	target := dir
	if !filepath.IsAbs(target) {
		target = filepath.Join(b.current, dir)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(b.base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s: %w", dir, ErrOutsideBase)
	}
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", target)
	}
	b.current = target
	return nil
}

// Up moves to the parent directory and reports whether it moved.
func (b *Browser) Up() bool {
	if !b.CanGoUp() {
		return false
	}
	b.current = filepath.Dir(b.current)
	return true
}

// Thumbnail decodes path and fits it in a size x size box. Results are
// cached until the file changes.
func (b *Browser) Thumbnail(path string, size int) (*image.NRGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("thumbnail size must be positive, got %d", size)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := thumbKey{path: path, size: size, modTime: info.ModTime()}

	b.mu.Lock()
	cached, ok := b.thumbs[key]
	b.mu.Unlock()
	if ok {
		return cached, nil
	}

	img, err := b.source(path)
	if err != nil {
		return nil, fmt.Errorf("thumbnail %s: %w", filepath.Base(path), err)
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	b.mu.Lock()
	b.thumbs[key] = thumb
	b.mu.Unlock()
	return thumb, nil
}

func (b *Browser) source(path string) (image.Image, error) {
	if b.preview != nil {
		if img, err := b.preview(path); err == nil {
			return img, nil
		}
	}
	return imaging.Open(path, imaging.AutoOrientation(true))
}
