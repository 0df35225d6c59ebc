// Package ingest orchestrates upload → blob placement → metadata extraction
// → catalog record construction → persistence.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"time"

	"minifm/core/blob"
	"minifm/core/meta"
	"minifm/logger"
	"minifm/model"
	"minifm/repository"
)

// ErrEmptyUpload is returned when the uploaded file has no content.
var ErrEmptyUpload = errors.New("uploaded file is empty")

// Overrides carries caller-supplied metadata. Non-empty fields win over
// anything parsed from the file.
type Overrides struct {
	Title  string
	Artist string
	Album  string
}

// Pipeline wires the blob store and the catalog together.
type Pipeline struct {
	blobs   *blob.Store
	catalog *repository.MusicRepository
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(blobs *blob.Store, catalog *repository.MusicRepository) *Pipeline {
	return &Pipeline{blobs: blobs, catalog: catalog}
}

// Ingest stores the upload and creates its catalog record.
//
// Metadata precedence is the core rule here: explicit overrides beat parsed
// tags, parsed tags beat filename-based defaults. The blob is fully written
// before the record referencing it is persisted; a copy failure aborts the
// whole operation without creating a record.
func (p *Pipeline) Ingest(src io.Reader, size int64, originalFilename string, ov Overrides) (model.Music, error) {
	if size == 0 {
		return model.Music{}, ErrEmptyUpload
	}

	id, target, err := p.blobs.Allocate(originalFilename)
	if err != nil {
		return model.Music{}, err
	}

	written, err := p.blobs.Write(src, target)
	if err != nil {
		// 落盘失败直接中止，可能残留不完整文件
		return model.Music{}, fmt.Errorf("failed to store upload %s: %w", originalFilename, err)
	}
	if written == 0 {
		return model.Music{}, ErrEmptyUpload
	}

	// 默认值：标题用原始文件名
	music := model.Music{
		ID:         id,
		Title:      originalFilename,
		Artist:     "Unknown Artist",
		Album:      "Unknown Album",
		FilePath:   target,
		Duration:   0,
		Format:     blob.Extension(originalFilename),
		CreateTime: time.Now().UnixMilli(),
	}

	// 标签解析失败不会中止入库
	parsed := meta.Extract(target)
	if parsed.Title != "" {
		music.Title = parsed.Title
	}
	if parsed.Artist != "" {
		music.Artist = parsed.Artist
	}
	if parsed.Album != "" {
		music.Album = parsed.Album
	}
	if parsed.Duration > 0 {
		music.Duration = parsed.Duration
	}
	if parsed.Status == meta.StatusNone {
		logger.Debug("未解析到任何元数据，使用默认值",
			logger.String("id", id),
			logger.String("filename", originalFilename))
	}

	// 用户显式提供的元数据优先级最高
	if ov.Title != "" {
		music.Title = ov.Title
	}
	if ov.Artist != "" {
		music.Artist = ov.Artist
	}
	if ov.Album != "" {
		music.Album = ov.Album
	}

	if err := p.catalog.Save(music); err != nil {
		return model.Music{}, fmt.Errorf("failed to persist catalog record %s: %w", id, err)
	}

	logger.Info("音乐入库成功",
		logger.String("id", id),
		logger.String("title", music.Title),
		logger.String("artist", music.Artist),
		logger.Int64("bytes", written))
	return music, nil
}
