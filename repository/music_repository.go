package repository

import (
	"strings"

	"minifm/model"
)

// MusicRepository is the authoritative music catalog: a JSON-snapshot store
// plus the catalog-specific search operation.
type MusicRepository struct {
	*JSONStore[model.Music]
}

// NewMusicRepository opens the music catalog backed by the given snapshot file.
func NewMusicRepository(path string) (*MusicRepository, error) {
	store, err := NewJSONStore[model.Music](path)
	if err != nil {
		return nil, err
	}
	return &MusicRepository{JSONStore: store}, nil
}

// Search returns records whose title, artist or album contains the keyword
// as a case-insensitive substring. An empty keyword returns all records.
func (r *MusicRepository) Search(keyword string) []model.Music {
	all := r.FindAll()
	if strings.TrimSpace(keyword) == "" {
		return all
	}

	k := strings.ToLower(keyword)
	matched := make([]model.Music, 0)
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Title), k) ||
			strings.Contains(strings.ToLower(m.Artist), k) ||
			strings.Contains(strings.ToLower(m.Album), k) {
			matched = append(matched, m)
		}
	}
	return matched
}
