package service

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/ocr"
)

// imageInfo is what ingestion needs to know about an upload before storing it.
type imageInfo struct {
	Format string // jpg, png, gif, webp
	Width  int
	Height int
}

// inspectImage decodes the image header. Anything the registered decoders cannot
// read is rejected with ErrInvalidImage.
func inspectImage(data []byte) (imageInfo, error) {
	if len(data) == 0 {
		return imageInfo{}, fmt.Errorf("%w: empty upload", domain.ErrInvalidImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return imageInfo{}, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return imageInfo{}, fmt.Errorf("%w: zero-sized image", domain.ErrInvalidImage)
	}
	if format == "jpeg" {
		format = "jpg"
	}
	return imageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func calculateMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

// contentTypeForKey derives the MIME type from an asset key's extension.
func contentTypeForKey(key string) string {
	return ocr.MIMEType(formatFromKey(key))
}

func formatFromKey(key string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(key), "."))
}

func originalKey(id, format string) string {
	return id + "." + format
}

func thumbnailKey(id string) string {
	return id + ".jpg"
}
