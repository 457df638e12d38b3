package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// TesseractReader runs the tesseract CLI, feeding the image on stdin.
type TesseractReader struct {
	bin       string
	languages string
}

// NewTesseractReader creates a reader for the given binary and language list (e.g. "eng+rus").
func NewTesseractReader(bin, languages string) *TesseractReader {
	if bin == "" {
		bin = "tesseract"
	}
	if languages == "" {
		languages = "eng+rus"
	}
	return &TesseractReader{bin: bin, languages: languages}
}

// Args returns the command line used for one image.
func (r *TesseractReader) Args() []string {
	// --psm 6 treats the image as one uniform block of text, which suits meme captions.
	return []string{"stdin", "stdout", "-l", r.languages, "--oem", "3", "--psm", "6"}
}

// ReadText returns the recognized text. A missing binary is a permanent failure.
func (r *TesseractReader) ReadText(ctx context.Context, data []byte, format string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin, r.Args()...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", Permanent(fmt.Errorf("tesseract binary %q not found: %w", r.bin, err))
		}
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
