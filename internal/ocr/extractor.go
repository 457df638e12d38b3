// Package ocr reads the text printed on meme images and turns it into tags.
package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/memetag/internal/config"
	"github.com/timmy/memetag/internal/tagging"
)

// Extractor returns the normalized tag tokens for an image.
type Extractor interface {
	Extract(ctx context.Context, data []byte, format string) ([]string, error)
}

// TextReader returns the raw text printed on an image.
type TextReader interface {
	ReadText(ctx context.Context, data []byte, format string) (string, error)
}

// permanentError marks failures that retrying will not fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the retrying extractor gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// TextExtractor adapts a TextReader to Extractor by tokenizing its output.
type TextExtractor struct {
	Reader TextReader
}

// Extract reads the image text and tokenizes it.
func (e TextExtractor) Extract(ctx context.Context, data []byte, format string) ([]string, error) {
	text, err := e.Reader.ReadText(ctx, data, format)
	if err != nil {
		return nil, err
	}
	return tagging.FromText(text), nil
}

// New builds the configured extractor wrapped with retries.
func New(cfg *config.OCRConfig) (*Retrying, error) {
	var reader TextReader
	switch cfg.Provider {
	case "vlm":
		reader = NewVLMReader(&VLMConfig{
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
	case "tesseract", "":
		reader = NewTesseractReader(cfg.TesseractBin, cfg.Languages)
	default:
		return nil, fmt.Errorf("unknown ocr provider %q", cfg.Provider)
	}
	return NewRetrying(TextExtractor{Reader: reader}, cfg.Attempts, cfg.Backoff), nil
}
