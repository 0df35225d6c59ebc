package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"minifm/logger"

	"github.com/fsnotify/fsnotify"
)

// Entity is a record addressable by a unique string key.
type Entity interface {
	Key() string
}

// Store defines the operations shared by all JSON-backed stores.
type Store[T Entity] interface {
	FindAll() []T
	FindByID(id string) (T, bool)
	Save(rec T) error
	DeleteByID(id string) error
}

// JSONStore is an in-memory index of records backed by a single JSON-array
// snapshot file. Every mutation rewrites the whole file before returning, so
// the on-disk state never contains a partial write. The map and the rewrite
// are guarded by one lock: readers may run concurrently, writers serialize
// over "mutate index + persist" as a unit.
//
// The snapshot file is additionally watched with fsnotify so that manual
// edits (the repair path for a corrupted file) are picked up live.
type JSONStore[T Entity] struct {
	path string

	mu      sync.RWMutex
	records map[string]T
	order   []string // insertion order, for stable listings

	lastPersist time.Time // guarded by mu; suppresses self-triggered reloads
	watcher     *fsnotify.Watcher
	done        chan struct{}
}

// NewJSONStore opens the snapshot file at path, creating the containing
// directory and an empty snapshot when missing. A snapshot that cannot be
// deserialized is logged and left on disk; the store starts empty.
func NewJSONStore[T Entity](path string) (*JSONStore[T], error) {
	s := &JSONStore[T]{
		path:    path,
		records: make(map[string]T),
		done:    make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory for %s: %w", path, err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("数据文件不存在，创建空快照", logger.String("path", path))
		s.mu.Lock()
		err := s.persistLocked()
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot file %s: %w", path, err)
	} else {
		s.mu.Lock()
		s.loadLocked()
		s.mu.Unlock()
	}

	s.startWatcher()
	return s, nil
}

// loadLocked replaces the in-memory index with the snapshot file contents.
// A read or deserialization failure leaves the store empty rather than
// failing startup; the broken file stays on disk for manual repair.
func (s *JSONStore[T]) loadLocked() {
	s.records = make(map[string]T)
	s.order = nil

	data, err := os.ReadFile(s.path)
	if err != nil {
		logger.Error("读取数据文件失败", logger.String("path", s.path), logger.ErrorField(err))
		return
	}

	var list []T
	if err := json.Unmarshal(data, &list); err != nil {
		logger.Error("解析数据文件失败，以空索引启动", logger.String("path", s.path), logger.ErrorField(err))
		return
	}

	for _, rec := range list {
		k := rec.Key()
		if _, exists := s.records[k]; !exists {
			s.order = append(s.order, k)
		}
		s.records[k] = rec
	}
	logger.Info("数据文件加载完成", logger.String("path", s.path), logger.Int("count", len(s.records)))
}

// persistLocked rewrites the entire snapshot file from the in-memory index.
// Callers must hold the write lock.
func (s *JSONStore[T]) persistLocked() error {
	list := make([]T, 0, len(s.order))
	for _, k := range s.order {
		list = append(list, s.records[k])
	}

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for %s: %w", s.path, err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file %s: %w", s.path, err)
	}
	s.lastPersist = time.Now()
	return nil
}

// startWatcher begins watching the snapshot file's directory for external
// writes. Watcher setup failure is non-fatal: the store simply will not see
// manual edits until restart.
func (s *JSONStore[T]) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("创建文件监听失败，外部修改将不会被加载", logger.ErrorField(err))
		return
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		logger.Warn("监听数据目录失败", logger.String("path", s.path), logger.ErrorField(err))
		watcher.Close()
		return
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					s.maybeReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("文件监听错误", logger.ErrorField(err))
			case <-s.done:
				return
			}
		}
	}()
}

// maybeReload re-reads the snapshot unless the change was our own persist.
func (s *JSONStore[T]) maybeReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastPersist) < time.Second {
		return
	}
	logger.Info("检测到数据文件被外部修改，重新加载", logger.String("path", s.path))
	s.loadLocked()
}

// FindAll returns a snapshot copy of all records in insertion order.
func (s *JSONStore[T]) FindAll() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]T, 0, len(s.order))
	for _, k := range s.order {
		list = append(list, s.records[k])
	}
	return list
}

// FindByID returns the record with the given id, if present.
func (s *JSONStore[T]) FindByID(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	return rec, ok
}

// Save upserts the record by its key and synchronously rewrites the snapshot
// file. A failed rewrite leaves the in-memory index updated and is surfaced
// to the caller; the stores re-sync on the next successful write.
func (s *JSONStore[T]) Save(rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := rec.Key()
	if _, exists := s.records[k]; !exists {
		s.order = append(s.order, k)
	}
	s.records[k] = rec
	return s.persistLocked()
}

// DeleteByID removes the record from the index and rewrites the snapshot.
func (s *JSONStore[T]) DeleteByID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		delete(s.records, id)
		for i, k := range s.order {
			if k == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	return s.persistLocked()
}

// Close stops the snapshot file watcher.
func (s *JSONStore[T]) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
