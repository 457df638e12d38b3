package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/repository"
	"github.com/timmy/memetag/internal/signing"
	"github.com/timmy/memetag/internal/tagging"
)

// QueryConfig holds configuration for the query service.
type QueryConfig struct {
	PublicURL  string        // base URL of the asset endpoint, e.g. https://memes.example.com
	URLTTL     time.Duration // lifetime of issued asset URLs
	MaxResults int
	MaxLength  int
}

// QueryService answers tag queries with signed asset URLs.
type QueryService struct {
	memeRepo   *repository.MemeRepository
	signer     *signing.Signer
	logger     *logger.Logger
	publicURL  string
	urlTTL     time.Duration
	maxResults int
	maxLength  int
}

// QueryResult is one matching meme with URLs an anonymous client can fetch.
type QueryResult struct {
	MemeID       string    `json:"meme_id"`
	Tags         []string  `json:"tags"`
	ImageURL     string    `json:"image_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// NewQueryService creates a new query service.
// Parameters:
//   - memeRepo: repository for meme records.
//   - signer: signer for asset references.
//   - log: logger instance.
//   - cfg: query configuration settings.
//
// Returns:
//   - *QueryService: initialized query service.
func NewQueryService(memeRepo *repository.MemeRepository, signer *signing.Signer, log *logger.Logger, cfg *QueryConfig) *QueryService {
	if log == nil {
		log = logger.GetDefault()
	}
	s := &QueryService{
		memeRepo:   memeRepo,
		signer:     signer,
		logger:     log.WithField(logger.FieldComponent, "query"),
		publicURL:  strings.TrimSuffix(cfg.PublicURL, "/"),
		urlTTL:     cfg.URLTTL,
		maxResults: cfg.MaxResults,
		maxLength:  cfg.MaxLength,
	}
	if s.urlTTL <= 0 {
		s.urlTTL = 24 * time.Hour
	}
	return s
}

// Query returns memes whose tags contain at least one token of raw, newest
// first. No match is an empty slice, not an error. An empty query lists the
// most recent memes.
func (s *QueryService) Query(ctx context.Context, raw string) ([]QueryResult, error) {
	tokens, err := tagging.QueryTokens(raw, s.maxLength)
	if err != nil {
		return nil, err
	}

	var memes []domain.Meme
	if len(tokens) == 0 {
		memes, err = s.memeRepo.ListRecent(ctx, s.maxResults)
	} else {
		memes, err = s.memeRepo.FindByTagTokens(ctx, tokens, s.maxResults)
	}
	if err != nil {
		return nil, err
	}

	results := make([]QueryResult, 0, len(memes))
	for i := range memes {
		result, err := s.sign(&memes[i])
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	s.logger.WithFields(logger.Fields{
		"tokens":          tokens,
		logger.FieldCount: len(results),
	}).Debug("Query answered")
	return results, nil
}

func (s *QueryService) sign(m *domain.Meme) (QueryResult, error) {
	image, err := s.signer.Sign(signing.Identity(domain.KindOriginal, m.AssetPath), s.urlTTL)
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to sign image of meme %s: %w", m.ID, err)
	}
	result := QueryResult{
		MemeID:       m.ID,
		Tags:         append([]string(nil), m.Tags...),
		ImageURL:     s.URL(image),
		ThumbnailURL: s.URL(image),
		ExpiresAt:    image.ExpiresAt,
	}
	if m.HasThumbnail() {
		thumb, err := s.signer.Sign(signing.Identity(domain.KindThumbnail, *m.ThumbnailPath), s.urlTTL)
		if err != nil {
			return QueryResult{}, fmt.Errorf("failed to sign thumbnail of meme %s: %w", m.ID, err)
		}
		result.ThumbnailURL = s.URL(thumb)
	}
	return result, nil
}

// URL renders the public URL of a signed reference.
func (s *QueryService) URL(ref signing.SignedReference) string {
	return s.publicURL + "/a/" + ref.Token()
}
