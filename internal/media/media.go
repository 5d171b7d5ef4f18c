// Package media stages, validates, resizes and stores listing images.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/4xmen/wasteless/internal/apperr"
	"github.com/4xmen/wasteless/internal/models"
)

const (
	DefaultMaxSize = 5 << 20
	maxWidth       = 800
	maxHeight      = 600
	keyPrefix      = "wasteless/food"
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Backend stores encoded images under a key and serves them from a URL.
type Backend interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Image describes a stored image.
type Image struct {
	URL      string
	PublicID string
	Width    int
	Height   int
	Format   string
	Size     int64
}

func (i *Image) Metadata() *models.ImageMetadata {
	return &models.ImageMetadata{
		PublicID: i.PublicID,
		Width:    i.Width,
		Height:   i.Height,
		Format:   i.Format,
		Size:     i.Size,
	}
}

type Service struct {
	backend Backend
	maxSize int64
	tempDir string
	logger  *zap.Logger
}

func NewService(backend Backend, maxSize int64, tempDir string, logger *zap.Logger) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, maxSize: maxSize, tempDir: tempDir, logger: logger}
}

// ValidateHeader checks what the client declared about the file.
func (s *Service) ValidateHeader(fh *multipart.FileHeader) error {
	if fh.Size > s.maxSize {
		return apperr.InvalidRequest(fmt.Sprintf("image must be at most %d MB", s.maxSize>>20))
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(fh.Filename))] {
		return apperr.InvalidRequest("only jpg, jpeg, png, gif and webp images are allowed")
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		return apperr.InvalidRequest("only image files are allowed")
	}
	return nil
}

// stage copies the upload to a temp file. The caller removes it.
func (s *Service) stage(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", apperr.Internal("failed to read upload", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.tempDir, "upload-*")
	if err != nil {
		return "", apperr.Internal("failed to stage upload", err)
	}
	defer tmp.Close()

	n, err := io.Copy(tmp, io.LimitReader(src, s.maxSize+1))
	if err != nil {
		os.Remove(tmp.Name())
		return "", apperr.Internal("failed to stage upload", err)
	}
	if n > s.maxSize {
		os.Remove(tmp.Name())
		return "", apperr.InvalidRequest(fmt.Sprintf("image must be at most %d MB", s.maxSize>>20))
	}
	return tmp.Name(), nil
}

// outputFormat picks the encoding for a sniffed type. WebP has no encoder,
// so it is stored as PNG.
func outputFormat(mime string) (imaging.Format, string, bool) {
	switch mime {
	case "image/jpeg":
		return imaging.JPEG, "jpg", true
	case "image/png", "image/webp":
		return imaging.PNG, "png", true
	case "image/gif":
		return imaging.GIF, "gif", true
	default:
		return 0, "", false
	}
}

// Upload validates, resizes and stores one image.
func (s *Service) Upload(ctx context.Context, fh *multipart.FileHeader) (*Image, error) {
	if err := s.ValidateHeader(fh); err != nil {
		return nil, err
	}

	path, err := s.stage(fh)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove staged upload", zap.String("path", path), zap.Error(err))
		}
	}()

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, apperr.Internal("failed to inspect upload", err)
	}
	format, ext, ok := outputFormat(mtype.String())
	if !ok {
		return nil, apperr.InvalidRequest("only image files are allowed")
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "invalid image file", err)
	}
	img = fit(img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return nil, apperr.Internal("failed to encode image", err)
	}

	key := fmt.Sprintf("%s/food_%d_%s.%s", keyPrefix, time.Now().UnixNano(), uuid.NewString(), ext)
	size := int64(buf.Len())
	url, err := s.backend.Put(ctx, key, bytes.NewReader(buf.Bytes()), size, "image/"+strings.Replace(ext, "jpg", "jpeg", 1))
	if err != nil {
		return nil, apperr.Internal("failed to upload image", err)
	}

	bounds := img.Bounds()
	return &Image{
		URL:      url,
		PublicID: key,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Format:   ext,
		Size:     size,
	}, nil
}

// fit shrinks img to fit within maxWidth x maxHeight, keeping the aspect ratio.
func fit(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxWidth && b.Dy() <= maxHeight {
		return img
	}
	return imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
}

func (s *Service) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	return s.backend.Delete(ctx, publicID)
}
