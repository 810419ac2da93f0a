// Package media stores uploaded images under the public static directories,
// shrinking and re-encoding them on the way in.
package media

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	jpegQuality = 85

	ProfileMaxBytes = 5 << 20
	GalleryMaxBytes = 10 << 20
	GalleryMaxFiles = 10
)

var (
	ErrUnsupportedType = errors.New("only image files are allowed")
	ErrTooLarge        = errors.New("file too large")
	ErrOutsidePath     = errors.New("path escapes media directory")
)

var allowedTypes = map[string]bool{
	"jpeg": true,
	"jpg":  true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// Kind describes one family of uploads: where files land, which URL prefix
// serves them, and the size and bounding box limits.
type Kind struct {
	Dir       string
	URLPrefix string
	MaxBytes  int64
	MaxWidth  int
	MaxHeight int
}

type Pipeline struct {
	Profile Kind
	Gallery Kind
	logger  *slog.Logger
}

// New returns a pipeline writing profile photos to uploadsDir (/uploads/) and
// gallery images to galleryDir (/gallery/).
func New(uploadsDir, galleryDir string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		Profile: Kind{Dir: uploadsDir, URLPrefix: "/uploads/", MaxBytes: ProfileMaxBytes, MaxWidth: 800, MaxHeight: 800},
		Gallery: Kind{Dir: galleryDir, URLPrefix: "/gallery/", MaxBytes: GalleryMaxBytes, MaxWidth: 1200, MaxHeight: 1200},
		logger:  logger,
	}
}

// Init creates both media directories.
func (p *Pipeline) Init() error {
	for _, dir := range []string{p.Profile.Dir, p.Gallery.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create media dir %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks an upload's size, extension and declared MIME type.
func (k Kind) Validate(fh *multipart.FileHeader) error {
	if fh.Size > k.MaxBytes {
		return ErrTooLarge
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
	if !allowedTypes[ext] {
		return ErrUnsupportedType
	}
	mime := strings.ToLower(fh.Header.Get("Content-Type"))
	if !strings.HasPrefix(mime, "image/") || !allowedTypes[strings.TrimPrefix(mime, "image/")] {
		return ErrUnsupportedType
	}
	return nil
}

// Save validates and stores the upload, then tries to optimize it. The
// returned URL points at the optimized file, or at the original when
// optimization failed.
func (p *Pipeline) Save(k Kind, fh *multipart.FileHeader) (string, error) {
	if err := k.Validate(fh); err != nil {
		return "", err
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name, err := stagingName(filepath.Ext(fh.Filename))
	if err != nil {
		return "", err
	}
	staged := filepath.Join(k.Dir, name)

	dst, err := os.Create(staged)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	// Guard against a client understating the part size.
	n, err := io.Copy(dst, io.LimitReader(src, k.MaxBytes+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(staged)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if n > k.MaxBytes {
		os.Remove(staged)
		return "", ErrTooLarge
	}

	optimized, err := p.optimize(k, staged)
	if err != nil {
		p.logger.Warn("image optimization failed, keeping original", "file", name, "error", err)
		return k.URLPrefix + name, nil
	}
	if err := os.Remove(staged); err != nil {
		p.logger.Warn("remove original after optimization", "file", name, "error", err)
	}
	return k.URLPrefix + optimized, nil
}

// SaveProfile stores a registration photo.
func (p *Pipeline) SaveProfile(fh *multipart.FileHeader) (string, error) {
	return p.Save(p.Profile, fh)
}

// SaveGallery stores one gallery image.
func (p *Pipeline) SaveGallery(fh *multipart.FileHeader) (string, error) {
	return p.Save(p.Gallery, fh)
}

// optimize fits the staged image inside the kind's bounding box without
// upscaling and writes it as JPEG next to the original.
func (p *Pipeline) optimize(k Kind, staged string) (string, error) {
	img, err := imaging.Open(staged, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	img = imaging.Fit(img, k.MaxWidth, k.MaxHeight, imaging.Lanczos)

	base := filepath.Base(staged)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + "-opt.jpg"
	if err := imaging.Save(img, filepath.Join(k.Dir, name), imaging.JPEGQuality(jpegQuality)); err != nil {
		os.Remove(filepath.Join(k.Dir, name))
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return name, nil
}

// Remove deletes the file behind a stored URL. URLs that do not belong to
// either kind are ignored. Paths resolving outside the kind's directory are
// rejected with ErrOutsidePath. A missing file is reported as fs.ErrNotExist.
func (p *Pipeline) Remove(url string) error {
	for _, k := range []Kind{p.Profile, p.Gallery} {
		if !strings.HasPrefix(url, k.URLPrefix) {
			continue
		}
		path, err := k.resolve(strings.TrimPrefix(url, k.URLPrefix))
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove %s: %w", url, err)
		}
		return nil
	}
	return nil
}

func (k Kind) resolve(name string) (string, error) {
	root, err := filepath.Abs(k.Dir)
	if err != nil {
		return "", fmt.Errorf("resolve media dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return "", fmt.Errorf("resolve media path: %w", err)
	}
	if !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", ErrOutsidePath
	}
	return path, nil
}

func stagingName(ext string) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate file name: %w", err)
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), hex.EncodeToString(b), strings.ToLower(ext)), nil
}
