package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"minifm/config"
	"minifm/core/blob"
	"minifm/core/ingest"
	"minifm/logger"
	"minifm/model"
	"minifm/repository"

	"github.com/gorilla/mux"
)

// MusicHandler serves the catalog endpoints: list, upload, delete and the
// audio/cover byte streams.
type MusicHandler struct {
	catalog  *repository.MusicRepository
	blobs    *blob.Store
	pipeline *ingest.Pipeline
	cfg      *config.Config
}

// NewMusicHandler creates a MusicHandler.
func NewMusicHandler(catalog *repository.MusicRepository, blobs *blob.Store, pipeline *ingest.Pipeline, cfg *config.Config) *MusicHandler {
	return &MusicHandler{catalog: catalog, blobs: blobs, pipeline: pipeline, cfg: cfg}
}

// musicItem is the list representation of a record. Storage paths stay
// internal; clients get URLs built from the record id.
type musicItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Duration int64  `json:"duration"`
	Format   string `json:"format"`
	AudioURL string `json:"audio_url"`
	CoverURL string `json:"cover_url"`
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// ListHandler returns a page of the catalog, optionally filtered by keyword.
func (h *MusicHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size < 1 {
		size = 20
	}
	keyword := r.URL.Query().Get("keyword")

	all := h.catalog.Search(keyword)
	total := len(all)

	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}

	var pageList []model.Music
	if start >= total {
		pageList = nil
	} else {
		pageList = all[start:end]
	}

	host := baseURL(r)
	list := make([]musicItem, 0, len(pageList))
	for _, m := range pageList {
		list = append(list, musicItem{
			ID:       m.ID,
			Title:    m.Title,
			Artist:   m.Artist,
			Album:    m.Album,
			Duration: m.Duration,
			Format:   m.Format,
			AudioURL: fmt.Sprintf("%s/music/stream/%s", host, m.ID),
			CoverURL: fmt.Sprintf("%s/music/cover/%s", host, m.ID),
		})
	}

	writeSuccess(w, map[string]interface{}{
		"total": total,
		"list":  list,
	})
}

// UploadHandler ingests a multipart upload into the catalog.
func (h *MusicHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		logger.Error("解析上传表单失败", logger.ErrorField(err))
		writeError(w, 400, "Failed to parse upload form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, 400, "Missing 'file' in form")
		return
	}
	defer file.Close()

	music, err := h.pipeline.Ingest(file, header.Size, header.Filename, ingest.Overrides{
		Title:  r.FormValue("title"),
		Artist: r.FormValue("artist"),
		Album:  r.FormValue("album"),
	})
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyUpload) {
			writeError(w, 400, "File is empty")
			return
		}
		logger.Error("上传入库失败",
			logger.String("filename", header.Filename),
			logger.ErrorField(err))
		writeError(w, 500, "Failed to upload file: "+err.Error())
		return
	}

	writeSuccess(w, map[string]interface{}{
		"id":     music.ID,
		"title":  music.Title,
		"artist": music.Artist,
	})
}

// DeleteHandler removes a catalog record. The blob stays on disk; cleanup is
// a separate operational concern.
func (h *MusicHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, found := h.catalog.FindByID(id); !found {
		writeError(w, 404, "Music not found")
		return
	}
	if err := h.catalog.DeleteByID(id); err != nil {
		logger.Error("删除目录记录失败", logger.String("id", id), logger.ErrorField(err))
		writeError(w, 500, "Failed to delete music")
		return
	}

	logger.Info("目录记录已删除", logger.String("id", id))
	writeSuccess(w, nil)
}

// StreamHandler serves the audio bytes with byte-range support.
func (h *MusicHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, mux.Vars(r)["id"], true)
}

// CoverHandler serves the cover image.
func (h *MusicHandler) CoverHandler(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, mux.Vars(r)["id"], false)
}

// serveFile streams the record's audio or cover blob. Unknown ids, records
// without the requested blob and blobs missing from disk all answer 404. A
// well-formed Range header yields 206 with exactly the requested span; a
// malformed one falls back to the full body.
func (h *MusicHandler) serveFile(w http.ResponseWriter, r *http.Request, id string, isAudio bool) {
	m, found := h.catalog.FindByID(id)
	if !found {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	var path string
	if isAudio {
		path = h.blobs.AudioPath(m)
	} else {
		var ok bool
		if path, ok = h.blobs.CoverPath(m); !ok {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("媒体文件缺失，记录与磁盘不一致",
			logger.String("id", id),
			logger.String("path", path))
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	size := fi.Size()

	w.Header().Set("Content-Type", contentType(m, isAudio))
	w.Header().Set("Accept-Ranges", "bytes")

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		if start, end, ok := parseRange(rangeHeader, size); ok {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
			w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
			w.WriteHeader(http.StatusPartialContent)

			if _, err := f.Seek(start, io.SeekStart); err != nil {
				logger.Error("定位媒体文件失败", logger.String("id", id), logger.ErrorField(err))
				return
			}
			if _, err := io.CopyN(w, f, end-start+1); err != nil {
				logger.Debug("范围响应中断", logger.String("id", id), logger.ErrorField(err))
			}
			return
		}
		// 无法解析的Range按完整响应处理
		logger.Debug("忽略无法解析的Range头",
			logger.String("id", id),
			logger.String("range", rangeHeader))
	}

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if _, err := io.Copy(w, f); err != nil {
		logger.Debug("完整响应中断", logger.String("id", id), logger.ErrorField(err))
	}
}

// contentType picks the response media type: flac gets audio/flac, every
// other audio format is served as audio/mpeg; covers are always image/jpeg.
func contentType(m model.Music, isAudio bool) string {
	if !isAudio {
		return "image/jpeg"
	}
	if m.Format == "flac" {
		return "audio/flac"
	}
	return "audio/mpeg"
}

// parseRange parses a single-span byte range header ("bytes=a-b", "bytes=a-"
// or "bytes=-n") against the total size. ok is false for anything malformed
// or out of bounds.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}

	first, last, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	if first == "" {
		// 后缀形式：最后n个字节
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, size > 0
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}

	if last == "" {
		end = size - 1
	} else {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		if end > size-1 {
			end = size - 1
		}
	}

	if start > end || start >= size {
		return 0, 0, false
	}
	return start, end, true
}
