// Package signing issues and verifies time-bounded references to stored assets.
package signing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/timmy/memetag/internal/domain"
)

// AssetResolver reports whether an asset identity still points at stored bytes.
type AssetResolver interface {
	Resolve(ctx context.Context, identity string) (bool, error)
}

// SignedReference is a credential for one asset, valid until ExpiresAt.
type SignedReference struct {
	Identity  string
	ExpiresAt time.Time
	token     string
}

// Token returns the URL-safe string form of the reference.
func (r SignedReference) Token() string {
	return r.token
}

// Signer signs asset identities with a server-held secret.
type Signer struct {
	secret   []byte
	resolver AssetResolver
	now      func() time.Time
}

// NewSigner creates a signer. resolver may be nil, in which case Verify skips the
// existence check.
func NewSigner(secret string, resolver AssetResolver) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	return &Signer{
		secret:   []byte(secret),
		resolver: resolver,
		now:      time.Now,
	}, nil
}

// WithClock returns a copy of the signer that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	c := *s
	c.now = now
	return &c
}

// Identity builds the signed identity of an asset key of the given kind.
func Identity(kind, key string) string {
	return kind + "/" + key
}

// SplitIdentity splits an identity into kind and key.
func SplitIdentity(identity string) (kind, key string, ok bool) {
	kind, key, ok = strings.Cut(identity, "/")
	if !ok || kind == "" || key == "" || strings.Contains(key, "/") {
		return "", "", false
	}
	return kind, key, true
}

// Sign issues a reference for identity that expires after ttl.
func (s *Signer) Sign(identity string, ttl time.Duration) (SignedReference, error) {
	if _, _, ok := SplitIdentity(identity); !ok {
		return SignedReference{}, fmt.Errorf("invalid asset identity %q", identity)
	}
	if ttl <= 0 {
		return SignedReference{}, fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	expiresAt := s.now().Add(ttl).Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		Subject:   identity,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return SignedReference{}, fmt.Errorf("failed to sign reference: %w", err)
	}
	return SignedReference{Identity: identity, ExpiresAt: expiresAt, token: token}, nil
}

// Verify checks the token's signature and expiry, then that the asset still exists.
// Failures are *domain.VerificationError with the rejection reason.
func (s *Signer) Verify(ctx context.Context, token string) (SignedReference, error) {
	ref, err := s.parse(token)
	if err != nil {
		return SignedReference{}, err
	}
	if s.resolver != nil {
		ok, err := s.resolver.Resolve(ctx, ref.Identity)
		if err != nil {
			return SignedReference{}, fmt.Errorf("failed to resolve %s: %w", ref.Identity, err)
		}
		if !ok {
			return SignedReference{}, &domain.VerificationError{Reason: domain.ReasonNotFound}
		}
	}
	return ref, nil
}

func (s *Signer) parse(token string) (SignedReference, error) {
	if token == "" || strings.Count(token, ".") != 2 {
		return SignedReference{}, &domain.VerificationError{Reason: domain.ReasonMalformed}
	}

	var claims jwt.RegisteredClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) || errors.Is(err, jwt.ErrTokenSignatureInvalid) ||
			errors.Is(err, jwt.ErrTokenUnverifiable) {
			return SignedReference{}, &domain.VerificationError{Reason: domain.ReasonBadSignature, Err: err}
		}
		return SignedReference{}, &domain.VerificationError{Reason: domain.ReasonMalformed, Err: err}
	}

	if _, _, ok := SplitIdentity(claims.Subject); !ok || claims.ExpiresAt == nil {
		return SignedReference{}, &domain.VerificationError{Reason: domain.ReasonMalformed}
	}
	expiresAt := claims.ExpiresAt.Time
	if !s.now().Before(expiresAt) {
		return SignedReference{}, &domain.VerificationError{Reason: domain.ReasonExpired}
	}
	return SignedReference{Identity: claims.Subject, ExpiresAt: expiresAt, token: token}, nil
}
