// Package disk stores objects as plain files under a base directory.
//
// Object key "images/cat.jpg" lives at {base}/images/cat.jpg, so an existing directory
// of originals can be served as an origin store without import. Content type and
// cache control are kept in a JSON sidecar ({file}.prism-meta) which List hides.
// Entries are reclaimed by a TTL + LRU cleanup job keyed on file mtime; Get touches
// mtime so hot objects survive eviction.
package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"Prism/internal/logging"
	"Prism/internal/storage"
)

const (
	metaSuffix = ".prism-meta"
	tmpSuffix  = ".tmp"
)

var (
	// ErrInvalidBasePath is returned when the base path is empty.
	ErrInvalidBasePath = errors.New("disk store base path cannot be empty")
	// ErrInvalidMaxSize is returned when MaxSizeBytes is negative.
	ErrInvalidMaxSize = errors.New("disk store max size cannot be negative")
	// ErrInvalidTTL is returned when TTL is negative.
	ErrInvalidTTL = errors.New("disk store ttl cannot be negative")
)

// Config configures a disk store.
type Config struct {
	BasePath string
	// MaxSizeBytes triggers LRU eviction once exceeded. 0 disables eviction.
	MaxSizeBytes int64
	// TTL removes entries not accessed within the window. 0 disables expiry.
	TTL time.Duration
	// ReadOnly refuses writes and skips the mtime touch on Get (origin directories).
	ReadOnly bool
	Logger   *zap.Logger
}

type metadata struct {
	ContentType  string `json:"contentType,omitempty"`
	CacheControl string `json:"cacheControl,omitempty"`
}

// Store implements storage.Store on the local filesystem.
type Store struct {
	basePath string
	maxSize  int64
	ttl      time.Duration
	readOnly bool
	logger   *zap.Logger
	now      func() time.Time
}

// New validates cfg and returns a store rooted at cfg.BasePath. The directory is
// created when missing.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, ErrInvalidBasePath
	}
	if cfg.MaxSizeBytes < 0 {
		return nil, ErrInvalidMaxSize
	}
	if cfg.TTL < 0 {
		return nil, ErrInvalidTTL
	}
	if !cfg.ReadOnly {
		if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
			return nil, fmt.Errorf("create disk store root: %w", err)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Store{
		basePath: filepath.Clean(cfg.BasePath),
		maxSize:  cfg.MaxSizeBytes,
		ttl:      cfg.TTL,
		readOnly: cfg.ReadOnly,
		logger:   logger.With(zap.String("store", "disk"), zap.String("base_path", cfg.BasePath)),
		now:      time.Now,
	}, nil
}

func (s *Store) objectPath(key string) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	if strings.HasSuffix(key, metaSuffix) || strings.HasSuffix(key, tmpSuffix) {
		return "", fmt.Errorf("%w: reserved suffix in %q", storage.ErrInvalidKey, key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Get reads the object and its sidecar. A missing sidecar falls back to the file
// extension, then to content sniffing.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, err
	}

	meta := s.readMeta(path)
	if meta.ContentType == "" {
		meta.ContentType = mime.TypeByExtension(filepath.Ext(path))
	}
	if meta.ContentType == "" {
		meta.ContentType = http.DetectContentType(data)
	}

	if !s.readOnly {
		// Failed mtime updates only degrade LRU accuracy.
		now := s.now()
		if chtimesErr := os.Chtimes(path, now, now); chtimesErr != nil {
			s.logger.Warn("[DISK-STORE] failed to update mtime for LRU tracking",
				zap.String("path", path),
				zap.Error(chtimesErr),
			)
		}
	}

	return &storage.Object{
		Key:          key,
		Data:         data,
		ContentType:  meta.ContentType,
		CacheControl: meta.CacheControl,
		LastModified: info.ModTime(),
	}, nil
}

// isNotExist also treats ENOTDIR as a miss: a key nested under an existing file.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func (s *Store) readMeta(path string) metadata {
	var meta metadata
	raw, err := os.ReadFile(path + metaSuffix)
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.logger.Warn("[DISK-STORE] ignoring corrupt metadata sidecar",
			zap.String("path", path+metaSuffix),
			zap.Error(err),
		)
		return metadata{}
	}
	return meta
}

// Put writes data and its sidecar, each through a temp file and rename so readers
// never observe a partial object.
func (s *Store) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.readOnly {
		return fmt.Errorf("disk store %s is read-only", s.basePath)
	}
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	meta, err := json.Marshal(metadata{
		ContentType:  storage.DefaultContentType(opts.ContentType),
		CacheControl: opts.CacheControl,
	})
	if err != nil {
		return err
	}
	if err := writeInDir(path+metaSuffix, meta); err != nil {
		return err
	}
	return writeInDir(path, data)
}

// writeInDir is writeAtomic that recreates the parent once if empty directory pruning
// removed it after MkdirAll.
func writeInDir(path string, data []byte) error {
	err := writeAtomic(path, data)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// List walks the directory under prefix. Sidecars and temp files are skipped.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	entries, _, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the object and its sidecar. Missing files are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.readOnly {
		return fmt.Errorf("disk store %s is read-only", s.basePath)
	}
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}
	return removeEntry(path)
}

func removeEntry(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(path + metaSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// DeletePrefix removes every object under prefix, then prunes the empty directories
// it left: the subtree under prefix and its now-empty parents. Other trees are untouched.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	removed, err := storage.DeleteListed(ctx, s, prefix)
	if removed > 0 {
		s.pruneDirs(s.prefixDir(prefix))
	}
	return removed, err
}

// prefixDir is the deepest directory containing every key under prefix.
func (s *Store) prefixDir(prefix string) string {
	dir := filepath.Join(s.basePath, filepath.FromSlash(prefix))
	if !strings.HasSuffix(prefix, "/") {
		dir = filepath.Dir(dir)
	}
	return dir
}

// pruneDirs removes empty directories under dir, then walks up removing dir and its
// parents while they are empty. The base path is never removed.
func (s *Store) pruneDirs(dir string) {
	rel, err := filepath.Rel(s.basePath, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	if _, err := os.Stat(dir); err != nil {
		return
	}
	if err := s.cleanEmptyDirs(dir); err != nil {
		s.logger.Warn("[DISK-STORE] failed to clean empty directories", zap.Error(err))
	}
	for dir != s.basePath {
		children, err := os.ReadDir(dir)
		if err != nil || len(children) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Close is a no-op; stop the cleanup job with the cancel func StartCleanupJob returned.
func (s *Store) Close() error { return nil }

type entry struct {
	key     string
	path    string
	size    int64
	modTime time.Time
}

// scan walks the smallest directory that contains prefix and returns matching entries
// with their total size.
func (s *Store) scan(ctx context.Context, prefix string) ([]entry, int64, error) {
	root := s.basePath
	if dir := prefix[:strings.LastIndexByte(prefix, '/')+1]; dir != "" {
		root = filepath.Join(s.basePath, filepath.FromSlash(dir))
	}

	var entries []entry
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, metaSuffix) || strings.HasSuffix(name, tmpSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			s.logger.Warn("[DISK-STORE] failed to stat file during scan, size may be inaccurate",
				zap.String("path", path),
				zap.Error(err),
			)
			return nil
		}
		entries = append(entries, entry{key: key, path: path, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, 0, err
	}
	return entries, total, nil
}

// Size returns the total bytes of stored objects, sidecars excluded.
func (s *Store) Size(ctx context.Context) (int64, error) {
	_, total, err := s.scan(ctx, "")
	return total, err
}

// EvictLRU removes least recently used entries until the store is under MaxSizeBytes.
func (s *Store) EvictLRU(ctx context.Context) (int, error) {
	if s.maxSize <= 0 {
		return 0, nil
	}
	entries, total, err := s.scan(ctx, "")
	if err != nil {
		return 0, err
	}
	if total <= s.maxSize {
		return 0, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	removed := 0
	for _, e := range entries {
		if total <= s.maxSize {
			break
		}
		if err := removeEntry(e.path); err != nil {
			s.logger.Warn("[DISK-STORE] failed to remove entry during LRU eviction",
				zap.String("path", e.path),
				zap.Error(err),
			)
			continue
		}
		total -= e.size
		removed++
		s.logger.Debug("[DISK-STORE] evicted entry (LRU)",
			zap.String("key", e.key),
			zap.Int64("size_bytes", e.size),
		)
	}

	if removed > 0 {
		s.logger.Info("[DISK-STORE] LRU eviction completed",
			zap.Int("entries_removed", removed),
			zap.Int64("new_size_bytes", total),
			zap.Int64("max_size_bytes", s.maxSize),
		)
	}
	return removed, nil
}

// CleanExpired removes entries whose mtime is older than the TTL.
func (s *Store) CleanExpired(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	entries, _, err := s.scan(ctx, "")
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, e := range entries {
		if e.modTime.After(cutoff) {
			continue
		}
		if err := removeEntry(e.path); err != nil {
			s.logger.Warn("[DISK-STORE] failed to remove expired entry",
				zap.String("path", e.path),
				zap.Time("mod_time", e.modTime),
				zap.Error(err),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("[DISK-STORE] TTL cleanup completed",
			zap.Int("entries_removed", removed),
			zap.Duration("ttl", s.ttl),
		)
	}
	return removed, nil
}

// Cleanup runs TTL expiry first, then LRU eviction if still over the size limit.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	if s.readOnly {
		return 0, nil
	}
	expired, err := s.CleanExpired(ctx)
	if err != nil {
		return 0, err
	}
	evicted, err := s.EvictLRU(ctx)
	if err != nil {
		return expired, err
	}
	return expired + evicted, nil
}

// cleanEmptyDirs removes empty directories strictly under root, deepest first.
func (s *Store) cleanEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("[DISK-STORE] error during empty dir cleanup scan",
				zap.String("path", path),
				zap.Error(err),
			)
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(dirs, func(i, j int) bool {
		return len(dirs[i]) > len(dirs[j])
	})

	for _, dir := range dirs {
		children, err := os.ReadDir(dir)
		if err != nil || len(children) > 0 {
			continue
		}
		if removeErr := os.Remove(dir); removeErr != nil {
			s.logger.Warn("[DISK-STORE] failed to remove empty directory",
				zap.String("path", dir),
				zap.Error(removeErr),
			)
		}
	}
	return nil
}

// StartCleanupJob runs Cleanup every interval until the returned cancel func is called.
// A non-positive interval starts nothing.
func (s *Store) StartCleanupJob(interval time.Duration) context.CancelFunc {
	if interval <= 0 || s.readOnly {
		s.logger.Info("[DISK-STORE] cleanup job disabled")
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("[DISK-STORE] CRITICAL: cleanup job panicked", zap.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info("[DISK-STORE] cleanup job started",
			zap.Duration("interval", interval),
			zap.Duration("ttl", s.ttl),
			zap.Int64("max_size_bytes", s.maxSize),
		)

		cycle := 0
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("[DISK-STORE] cleanup job stopped")
				return
			case <-ticker.C:
				cycle++
				removed, err := s.Cleanup(ctx)
				if err != nil {
					if ctx.Err() != nil {
						continue
					}
					s.logger.Error("[DISK-STORE] cleanup error", zap.Error(err), zap.Int("cycle", cycle))
					continue
				}
				if removed > 0 {
					if err := s.cleanEmptyDirs(s.basePath); err != nil {
						s.logger.Warn("[DISK-STORE] failed to clean empty directories", zap.Error(err))
					}
					s.logger.Info("[DISK-STORE] cleanup completed",
						zap.Int("entries_removed", removed),
						zap.Int("cycle", cycle),
					)
				} else if cycle%6 == 0 {
					size, _ := s.Size(ctx)
					s.logger.Debug("[DISK-STORE] cleanup heartbeat",
						zap.Int("cycle", cycle),
						zap.Int64("size_bytes", size),
					)
				}
			}
		}
	}()

	return cancel
}
