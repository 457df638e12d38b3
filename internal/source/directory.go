package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Directory imports every image below a local folder. Subfolder names and
// file name parts become the item's caption, so a tree like
// "cats/grumpy_monday.jpg" is tagged with "cats grumpy monday".
type Directory struct {
	root   string
	items  []Item
	loaded bool
}

// NewDirectory creates a source over root.
func NewDirectory(root string) *Directory {
	return &Directory{root: root}
}

// Name returns a human-readable name for this source
func (d *Directory) Name() string {
	return "directory " + d.root
}

// FetchBatch fetches a batch of items
func (d *Directory) FetchBatch(ctx context.Context, cursor string, limit int) ([]Item, string, error) {
	if !d.loaded {
		if err := d.load(ctx); err != nil {
			return nil, "", fmt.Errorf("failed to load items: %w", err)
		}
		d.loaded = true
	}

	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(d.items) {
		return []Item{}, "", nil
	}
	if limit <= 0 {
		limit = len(d.items)
	}

	end := start + limit
	if end > len(d.items) {
		end = len(d.items)
	}
	next := ""
	if end < len(d.items) {
		next = strconv.Itoa(end)
	}
	return d.items[start:end], next, nil
}

// Count returns the total number of items.
func (d *Directory) Count(ctx context.Context) (int, error) {
	if !d.loaded {
		if err := d.load(ctx); err != nil {
			return 0, err
		}
		d.loaded = true
	}
	return len(d.items), nil
}

func (d *Directory) load(ctx context.Context) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", d.root)
	}

	d.items = []Item{}
	err = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") && path != d.root {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}

		format := formatOf(name)
		if format == "" {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		d.items = append(d.items, Item{
			SourceID:  filepath.ToSlash(rel),
			LocalPath: path,
			Format:    format,
			Caption:   captionOf(rel),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", d.root, err)
	}

	sort.Slice(d.items, func(i, j int) bool {
		return d.items[i].SourceID < d.items[j].SourceID
	})
	return nil
}

func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "jpg"
	case ".png":
		return "png"
	case ".gif":
		return "gif"
	case ".webp":
		return "webp"
	}
	return ""
}

// captionOf turns "cats/grumpy_monday-2.jpg" into "cats grumpy monday 2".
func captionOf(rel string) string {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
	fields := strings.FieldsFunc(rel, func(r rune) bool {
		return r == '/' || r == '_' || r == '-' || r == '.' || r == ' '
	})
	return strings.Join(fields, " ")
}
