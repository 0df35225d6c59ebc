// Package meta extracts embedded tag metadata from audio files.
//
// Extraction is best-effort by design: a corrupt file, an unsupported
// container or a missing tag frame yields an empty or partial Result, never
// an error. Ingestion must not be blocked by a malformed file.
package meta

import (
	"os"
	"path/filepath"
	"strings"

	"minifm/logger"

	"github.com/dhowden/tag"
	flac "github.com/go-flac/go-flac"
	"github.com/gopxl/beep/mp3"
)

// Status describes how much of the file could be parsed.
type Status int

const (
	// StatusNone means nothing usable was extracted.
	StatusNone Status = iota
	// StatusPartial means some but not all fields were extracted.
	StatusPartial
	// StatusFull means title, artist, album and duration were all extracted.
	StatusFull
)

// Result holds the fields the underlying tag container provided. Empty
// strings and a zero duration mean "not present"; callers apply defaults.
type Result struct {
	Title    string
	Artist   string
	Album    string
	Duration int64 // seconds
	Status   Status
}

// Extract reads tag metadata and duration from the audio file at path.
// It never returns an error; anything unreadable comes back as a zero field.
func Extract(path string) Result {
	var res Result

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("打开音频文件失败，跳过元数据解析",
			logger.String("path", path),
			logger.ErrorField(err))
		return res
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		logger.Debug("解析音频标签失败",
			logger.String("path", path),
			logger.ErrorField(err))
	} else {
		res.Title = strings.TrimSpace(m.Title())
		res.Artist = strings.TrimSpace(m.Artist())
		res.Album = strings.TrimSpace(m.Album())
	}

	res.Duration = duration(path)
	res.Status = status(res)
	return res
}

// duration computes the track length in seconds for the formats we can
// decode; other formats report 0.
func duration(path string) int64 {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3Duration(path)
	case ".flac":
		return flacDuration(path)
	default:
		return 0
	}
}

func mp3Duration(path string) int64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	// mp3.Decode takes ownership of the closer.
	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		logger.Debug("解码MP3失败，时长记为0",
			logger.String("path", path),
			logger.ErrorField(err))
		return 0
	}
	defer streamer.Close()

	return int64(format.SampleRate.D(streamer.Len()).Seconds())
}

func flacDuration(path string) int64 {
	f, err := flac.ParseFile(path)
	if err != nil {
		logger.Debug("解析FLAC失败，时长记为0",
			logger.String("path", path),
			logger.ErrorField(err))
		return 0
	}
	info, err := f.GetStreamInfo()
	if err != nil || info.SampleRate == 0 {
		return 0
	}
	return info.SampleCount / int64(info.SampleRate)
}

func status(r Result) Status {
	if r.Title == "" && r.Artist == "" && r.Album == "" && r.Duration == 0 {
		return StatusNone
	}
	if r.Title != "" && r.Artist != "" && r.Album != "" && r.Duration > 0 {
		return StatusFull
	}
	return StatusPartial
}
