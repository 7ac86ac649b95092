package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage stores objects as files below a base directory.
type LocalStorage struct {
	basePath string
	baseURL  string
	logger   *slog.Logger
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(cfg LocalConfig, logger *slog.Logger) (*LocalStorage, error) {
	absPath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	logger.Info("initialized local storage", "base_path", absPath)

	return &LocalStorage{
		basePath: absPath,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:   logger,
	}, nil
}

// Put writes to a temporary file and renames it into place, so readers never
// see a partial snapshot.
func (s *LocalStorage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return &StorageError{Op: "Put", Key: key, Err: err}
	}

	if !opts.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return &StorageError{Op: "Put", Key: key, Err: ErrKeyExists}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("create directory: %w", err)}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("create temp file: %w", err)}
	}
	defer os.Remove(tmp.Name())

	src := data
	if opts.MaxSize > 0 {
		src = io.LimitReader(data, opts.MaxSize+1)
	}
	written, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("write file: %w", err)}
	}
	if opts.MaxSize > 0 && written > opts.MaxSize {
		return &StorageError{Op: "Put", Key: key, Err: ErrTooLarge}
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("rename file: %w", err)}
	}

	s.logger.Debug("stored file", "key", key, "size", written)
	return nil
}

func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: ErrNotFound}
		}
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}

	return file, ObjectInfo{
		Key:          key,
		Size:         stat.Size(),
		ContentType:  contentTypeFor(key),
		LastModified: stat.ModTime(),
	}, nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return false, &StorageError{Op: "Exists", Key: key, Err: err}
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &StorageError{Op: "Exists", Key: key, Err: err}
	}
	return true, nil
}

// URL returns baseURL/key. expires is ignored.
func (s *LocalStorage) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if _, err := s.resolvePath(key); err != nil {
		return "", &StorageError{Op: "URL", Key: key, Err: err}
	}
	return s.baseURL + "/" + key, nil
}

func (s *LocalStorage) resolvePath(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if !strings.HasPrefix(path, s.basePath+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return path, nil
}
