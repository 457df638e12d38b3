package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// MemeStatus represents the tagging state of a meme record.
type MemeStatus string

const (
	// MemeStatusTagged means the extractor ran successfully (possibly finding no text).
	MemeStatusTagged MemeStatus = "tagged"
	// MemeStatusUnindexed means extraction failed and the record needs a retag.
	MemeStatusUnindexed MemeStatus = "unindexed"
)

// Asset kinds double as the first segment of a signed asset identity.
const (
	KindOriginal  = "memes"
	KindThumbnail = "thumbnails"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Meme is one stored image plus the tags derived from it.
type Meme struct {
	ID            string      `gorm:"type:text;primaryKey" json:"id"`
	AssetPath     string      `gorm:"type:text;not null;uniqueIndex:idx_memes_asset_path" json:"asset_path"`
	ThumbnailPath *string     `gorm:"type:text" json:"thumbnail_path,omitempty"`
	ContentHash   string      `gorm:"type:text;index:idx_memes_content_hash" json:"content_hash"`
	Format        string      `gorm:"type:text" json:"format"`
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	FileSize      int64       `json:"file_size"`
	Tags          StringArray `gorm:"type:text" json:"tags"`
	ManualTags    StringArray `gorm:"type:text" json:"manual_tags,omitempty"`
	Status        MemeStatus  `gorm:"type:text;index:idx_memes_status;default:tagged" json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	TaggedAt      *time.Time  `gorm:"index:idx_memes_tagged_at" json:"tagged_at,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Meme.
func (Meme) TableName() string {
	return "memes"
}

// HasThumbnail reports whether a thumbnail key is bound to the record.
func (m *Meme) HasThumbnail() bool {
	return m.ThumbnailPath != nil && *m.ThumbnailPath != ""
}

// MatchesAny reports whether at least one token is contained in at least one tag.
// Tokens and tags are expected to be normalized already.
func (m *Meme) MatchesAny(tokens []string) bool {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		for _, tag := range m.Tags {
			if strings.Contains(tag, token) {
				return true
			}
		}
	}
	return false
}
