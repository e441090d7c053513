package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	fileExt = ".json"

	// changes beyond the buffer are dropped
	changesBuffer = 64
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileStore keeps one file per key inside a directory. Writes go through a
// temp file and rename so readers never observe a partial value.
type FileStore struct {
	dir     string
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	closed bool

	// hashes holds the last content this process wrote or saw per key, so
	// its own writes are not reported as external changes.
	hashMu sync.Mutex
	hashes map[string]string

	changes chan string
	done    chan struct{}
}

// NewFileStore opens dir (creating it) and starts watching it for changes
// made by other processes.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	s := &FileStore{
		dir:     dir,
		logger:  logger,
		watcher: w,
		hashes:  make(map[string]string),
		changes: make(chan string, changesBuffer),
		done:    make(chan struct{}),
	}
	go s.processEvents()
	return s, nil
}

func (s *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(s.dir, key+fileExt), nil
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	s.remember(key, raw)
	return raw, true, nil
}

func (s *FileStore) Set(key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}

	s.remember(key, value)
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.remember(key, nil)
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Changes() <-chan string {
	return s.changes
}

// Close stops the watcher and closes the change channel.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.watcher.Close()
	<-s.done
	return err
}

func hashOf(raw []byte) string {
	if raw == nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (s *FileStore) remember(key string, raw []byte) {
	s.hashMu.Lock()
	s.hashes[key] = hashOf(raw)
	s.hashMu.Unlock()
}

// observe records the current content of key and reports whether it differs
// from what this process last wrote or read.
func (s *FileStore) observe(key string) bool {
	raw, err := os.ReadFile(filepath.Join(s.dir, key+fileExt))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("Failed to read changed key", zap.String("key", key), zap.Error(err))
		return false
	}
	if errors.Is(err, fs.ErrNotExist) {
		raw = nil
	}
	h := hashOf(raw)

	s.hashMu.Lock()
	defer s.hashMu.Unlock()
	if prev, ok := s.hashes[key]; ok && prev == h {
		return false
	}
	s.hashes[key] = h
	return true
}

func keyFromPath(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	key := strings.TrimSuffix(base, fileExt)
	return key, validKey.MatchString(key)
}

func (s *FileStore) processEvents() {
	defer close(s.done)
	defer close(s.changes)

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
				!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			key, ok := keyFromPath(event.Name)
			if !ok || !s.observe(key) {
				continue
			}
			select {
			case s.changes <- key:
			default:
				s.logger.Warn("Storage change dropped", zap.String("key", key))
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Storage watcher error", zap.Error(err))
		}
	}
}
