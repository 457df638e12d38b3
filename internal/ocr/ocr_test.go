package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/memetag/internal/domain"
)

type flakyExtractor struct {
	failures int
	err      error
	calls    int
}

func (f *flakyExtractor) Extract(_ context.Context, _ []byte, _ string) ([]string, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []string{"ok"}, nil
}

func TestRetryingRecoversFromTransientFailures(t *testing.T) {
	inner := &flakyExtractor{failures: 2, err: errors.New("timeout")}
	r := NewRetrying(inner, 3, time.Millisecond)

	tags, err := r.Extract(context.Background(), nil, "png")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, tags)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingExhaustion(t *testing.T) {
	inner := &flakyExtractor{failures: 10, err: errors.New("unreachable")}
	r := NewRetrying(inner, 3, time.Millisecond)

	_, err := r.Extract(context.Background(), nil, "png")
	var extractionErr *domain.ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, 3, extractionErr.Attempts)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingStopsOnPermanent(t *testing.T) {
	inner := &flakyExtractor{failures: 10, err: Permanent(errors.New("bad request"))}
	r := NewRetrying(inner, 5, time.Millisecond)

	_, err := r.Extract(context.Background(), nil, "png")
	assert.True(t, domain.IsExtractionError(err))
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inner := &flakyExtractor{failures: 10, err: context.Canceled}
	r := NewRetrying(inner, 5, time.Millisecond)

	_, err := r.Extract(ctx, nil, "png")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, domain.IsExtractionError(err))
}

type staticReader string

func (s staticReader) ReadText(context.Context, []byte, string) (string, error) {
	return string(s), nil
}

func TestTextExtractorTokenizes(t *testing.T) {
	tags, err := TextExtractor{Reader: staticReader("ME WHEN the build\nis GREEN")}.Extract(context.Background(), nil, "png")
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "green"}, tags)
}

func TestTesseractArgs(t *testing.T) {
	r := NewTesseractReader("", "")
	assert.Equal(t, []string{"stdin", "stdout", "-l", "eng+rus", "--oem", "3", "--psm", "6"}, r.Args())
}

func TestTesseractMissingBinaryIsPermanent(t *testing.T) {
	r := NewTesseractReader("definitely-not-a-tesseract-binary", "eng")
	_, err := r.ReadText(context.Background(), []byte("x"), "png")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestVLMReader(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"HELLO THERE"}}]}`))
	}))
	defer srv.Close()

	reader := NewVLMReader(&VLMConfig{Model: "gpt-test", APIKey: "key", BaseURL: srv.URL + "/"})
	text, err := reader.ReadText(context.Background(), []byte{1, 2, 3}, "png")
	require.NoError(t, err)
	assert.Equal(t, "HELLO THERE", text)
	assert.Equal(t, "gpt-test", got.Model)
	assert.Len(t, got.Messages, 2)
}

func TestVLMReaderClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad image","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	reader := NewVLMReader(&VLMConfig{Model: "m", APIKey: "k", BaseURL: srv.URL})
	_, err := reader.ReadText(context.Background(), []byte{1}, "png")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.True(t, strings.Contains(err.Error(), "bad image"))
}

func TestVLMReaderServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	reader := NewVLMReader(&VLMConfig{Model: "m", APIKey: "k", BaseURL: srv.URL})
	_, err := reader.ReadText(context.Background(), []byte{1}, "png")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
