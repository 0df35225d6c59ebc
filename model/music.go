package model

// Music represents one catalog entry for a stored media item.
// The struct doubles as the snapshot-file representation; FilePath and
// CoverPath are internal storage locations and are never returned by the
// API directly (handlers build stream/cover URLs from the ID instead).
type Music struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	FilePath   string `json:"filePath"`
	CoverPath  string `json:"coverPath,omitempty"`
	Duration   int64  `json:"duration"` // Seconds, 0 when unknown
	Format     string `json:"format"`   // Lower-cased extension: mp3, flac, ...
	CreateTime int64  `json:"createTime"` // Epoch milliseconds, set once at ingestion
}

// Key returns the unique identifier used by the store.
func (m Music) Key() string {
	return m.ID
}
