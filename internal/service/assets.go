package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/signing"
	"github.com/timmy/memetag/internal/storage"
)

// Asset is an open stream of stored bytes authorized by a signed reference.
type Asset struct {
	Body        io.ReadCloser
	ContentType string
	Identity    string
	ExpiresAt   time.Time
}

// AssetService resolves signed references to stored bytes. It has no side effects.
type AssetService struct {
	signer *signing.Signer
	stores *storage.Stores
}

// NewAssetService creates a new asset service.
func NewAssetService(signer *signing.Signer, stores *storage.Stores) *AssetService {
	return &AssetService{signer: signer, stores: stores}
}

// Fetch verifies token and opens the referenced asset. Rejections are
// *domain.VerificationError; a file removed after verification reports
// ReasonNotFound as well.
func (s *AssetService) Fetch(ctx context.Context, token string) (*Asset, error) {
	ref, err := s.signer.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	kind, key, _ := signing.SplitIdentity(ref.Identity)
	store, ok := s.stores.ForKind(kind)
	if !ok {
		return nil, &domain.VerificationError{Reason: domain.ReasonNotFound}
	}

	body, err := store.Read(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &domain.VerificationError{Reason: domain.ReasonNotFound, Err: err}
		}
		return nil, &domain.StorageIOError{Op: "read", Path: ref.Identity, Err: err}
	}
	return &Asset{
		Body:        body,
		ContentType: contentTypeForKey(key),
		Identity:    ref.Identity,
		ExpiresAt:   ref.ExpiresAt,
	}, nil
}
