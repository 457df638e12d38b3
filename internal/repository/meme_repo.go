package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/timmy/memetag/internal/domain"
)

// recencyOrder puts never-tagged records last on every driver, then newest first.
const recencyOrder = "CASE WHEN tagged_at IS NULL THEN 1 ELSE 0 END, tagged_at DESC, created_at DESC"

// MemeRepository handles meme data operations.
type MemeRepository struct {
	db *gorm.DB
}

// NewMemeRepository creates a new MemeRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *MemeRepository: repository instance bound to db.
func NewMemeRepository(db *gorm.DB) *MemeRepository {
	return &MemeRepository{db: db}
}

// Insert adds a new meme record. Inserting an asset path that is already
// indexed fails with gorm.ErrDuplicatedKey.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meme: meme record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *MemeRepository) Insert(ctx context.Context, meme *domain.Meme) error {
	if err := r.db.WithContext(ctx).Create(meme).Error; err != nil {
		return fmt.Errorf("failed to insert meme %s: %w", meme.ID, err)
	}
	return nil
}

// UpdateTags replaces the tag set of an existing record in a single statement.
// A record deleted in the meantime is not recreated: the call returns NotFoundError.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: meme ID.
//   - tags: the complete new tag set.
//   - status: tagging status to store alongside.
//   - taggedAt: new tagged_at value; nil leaves the column unchanged.
// Returns:
//   - error: NotFoundError if no row was updated.
func (r *MemeRepository) UpdateTags(ctx context.Context, id string, tags []string, status domain.MemeStatus, taggedAt *time.Time) error {
	updates := map[string]interface{}{
		"tags":       domain.StringArray(tags),
		"status":     status,
		"updated_at": time.Now(),
	}
	if taggedAt != nil {
		updates["tagged_at"] = *taggedAt
	}
	result := r.db.WithContext(ctx).Model(&domain.Meme{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update tags for meme %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return &domain.NotFoundError{ID: id}
	}
	return nil
}

// SetThumbnail binds a thumbnail key to an existing record.
func (r *MemeRepository) SetThumbnail(ctx context.Context, id, key string) error {
	result := r.db.WithContext(ctx).Model(&domain.Meme{}).Where("id = ?", id).
		Updates(map[string]interface{}{"thumbnail_path": key, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to set thumbnail for meme %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return &domain.NotFoundError{ID: id}
	}
	return nil
}

// Delete removes a meme by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: meme ID to delete.
// Returns:
//   - error: NotFoundError if the record does not exist.
func (r *MemeRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.Meme{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete meme %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return &domain.NotFoundError{ID: id}
	}
	return nil
}

// DeleteAll removes every meme record and returns how many were removed.
func (r *MemeRepository) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&domain.Meme{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear memes: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetByID retrieves a meme by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: meme ID.
// Returns:
//   - *domain.Meme: meme record if found.
//   - error: NotFoundError if the record does not exist.
func (r *MemeRepository) GetByID(ctx context.Context, id string) (*domain.Meme, error) {
	var meme domain.Meme
	if err := r.db.WithContext(ctx).First(&meme, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to get meme %s: %w", id, err)
	}
	return &meme, nil
}

// GetByAssetPath returns the record that references key in the memes store,
// or (nil, nil) when no record does.
func (r *MemeRepository) GetByAssetPath(ctx context.Context, key string) (*domain.Meme, error) {
	var memes []domain.Meme
	if err := r.db.WithContext(ctx).
		Where("asset_path = ?", key).
		Limit(1).
		Find(&memes).Error; err != nil {
		return nil, fmt.Errorf("failed to look up asset path %s: %w", key, err)
	}
	if len(memes) == 0 {
		return nil, nil
	}
	return &memes[0], nil
}

// GetByContentHash retrieves the oldest meme with the given MD5 hash for deduplication.
// Returns (nil, nil) when there is none.
func (r *MemeRepository) GetByContentHash(ctx context.Context, hash string) (*domain.Meme, error) {
	var memes []domain.Meme
	if err := r.db.WithContext(ctx).
		Where("content_hash = ?", hash).
		Order("created_at ASC").
		Limit(1).
		Find(&memes).Error; err != nil {
		return nil, fmt.Errorf("failed to look up content hash: %w", err)
	}
	if len(memes) == 0 {
		return nil, nil
	}
	return &memes[0], nil
}

// ListAll returns every record, oldest first.
func (r *MemeRepository) ListAll(ctx context.Context) ([]domain.Meme, error) {
	var memes []domain.Meme
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&memes).Error; err != nil {
		return nil, fmt.Errorf("failed to list memes: %w", err)
	}
	return memes, nil
}

// ListRecent returns up to limit records, most recently tagged first.
func (r *MemeRepository) ListRecent(ctx context.Context, limit int) ([]domain.Meme, error) {
	var memes []domain.Meme
	query := r.db.WithContext(ctx).Order(recencyOrder)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&memes).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent memes: %w", err)
	}
	return memes, nil
}

// CountByStatus counts memes by status.
func (r *MemeRepository) CountByStatus(ctx context.Context, status domain.MemeStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Meme{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// AssetPathSet returns the set of asset paths referenced by any record.
func (r *MemeRepository) AssetPathSet(ctx context.Context) (map[string]struct{}, error) {
	var paths []string
	if err := r.db.WithContext(ctx).Model(&domain.Meme{}).Pluck("asset_path", &paths).Error; err != nil {
		return nil, fmt.Errorf("failed to list asset paths: %w", err)
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set, nil
}

// FindByTagTokens returns records where at least one token is a substring of at
// least one tag, most recently tagged first. Tokens must already be normalized.
// Records without tags never match. limit <= 0 returns every match.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - tokens: normalized query tokens, OR-combined.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.Meme: matching records.
//   - error: non-nil if the query fails.
func (r *MemeRepository) FindByTagTokens(ctx context.Context, tokens []string, limit int) ([]domain.Meme, error) {
	var clauses []string
	var args []interface{}
	for _, token := range tokens {
		if token == "" {
			continue
		}
		clauses = append(clauses, `LOWER(tags) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likePattern(token)+"%")
	}
	if len(clauses) == 0 {
		return []domain.Meme{}, nil
	}

	var candidates []domain.Meme
	if err := r.db.WithContext(ctx).
		Where(strings.Join(clauses, " OR "), args...).
		Order(recencyOrder).
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to search memes: %w", err)
	}

	// The LIKE prefilter runs over the serialized array, so confirm per tag.
	matches := make([]domain.Meme, 0, len(candidates))
	for i := range candidates {
		if candidates[i].MatchesAny(tokens) {
			matches = append(matches, candidates[i])
			if limit > 0 && len(matches) == limit {
				break
			}
		}
	}
	return matches, nil
}

// likePattern encodes token the way it appears inside the JSON tags column and
// escapes LIKE wildcards.
func likePattern(token string) string {
	encoded, err := json.Marshal(token)
	if err == nil {
		token = strings.TrimSuffix(strings.TrimPrefix(string(encoded), `"`), `"`)
	}
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(token)
}
