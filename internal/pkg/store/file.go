package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"pokemon-arena/internal/pkg/lock"
)

// FileStore keeps each kind in its own JSON file under dir.
type FileStore struct {
	dir   string
	opts  Options
	locks *lock.KeyLock
}

// NewFileStore creates the data directory if needed and returns a store over it.
func NewFileStore(dir string, opts Options) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	log.Info().
		Str("dir", dir).
		Bool("tolerate_corrupt", opts.TolerateCorrupt).
		Msg("Using file record store")

	return &FileStore{
		dir:   dir,
		opts:  opts,
		locks: lock.New(),
	}, nil
}

// Dir returns the data directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(kind Kind) string {
	return filepath.Join(s.dir, kind.FileName())
}

func (s *FileStore) read(kind Kind) ([]byte, error) {
	data, err := os.ReadFile(s.path(kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", kind.FileName(), err)
	}
	return data, nil
}

// Load decodes the kind's file into out. A missing file loads as empty.
func (s *FileStore) Load(ctx context.Context, kind Kind, out any) error {
	if err := checkKinds([]Kind{kind}); err != nil {
		return err
	}
	data, err := s.read(kind)
	if err != nil {
		return err
	}
	return decode(kind, data, out, s.opts)
}

// Save atomically replaces the kind's file.
func (s *FileStore) Save(ctx context.Context, kind Kind, v any) error {
	return s.Update(ctx, []Kind{kind}, func(tx Tx) error {
		return tx.Save(kind, v)
	})
}

// Update locks kinds, runs fn and writes every saved kind. All temp files are
// written before the first rename so a failed encode or write leaves every
// file untouched.
func (s *FileStore) Update(ctx context.Context, kinds []Kind, fn func(tx Tx) error) error {
	if err := checkKinds(kinds); err != nil {
		return err
	}

	keys := make([]string, len(kinds))
	for i, k := range kinds {
		keys[i] = string(k)
	}
	held := s.locks.LockAll(keys...)
	defer s.locks.UnlockAll(held)

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &fileTx{store: s, kinds: kinds, pending: make(map[Kind][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx.pending)
}

func (s *FileStore) commit(pending map[Kind][]byte) error {
	if len(pending) == 0 {
		return nil
	}

	temps := make(map[Kind]string, len(pending))
	cleanup := func() {
		for _, name := range temps {
			_ = os.Remove(name)
		}
	}

	for kind, data := range pending {
		name, err := s.writeTemp(kind, data)
		if err != nil {
			cleanup()
			log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to write records")
			return err
		}
		temps[kind] = name
	}

	for kind, name := range temps {
		if err := os.Rename(name, s.path(kind)); err != nil {
			cleanup()
			log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to replace records file")
			return fmt.Errorf("failed to replace %s: %w", kind.FileName(), err)
		}
		delete(temps, kind)
	}
	return nil
}

func (s *FileStore) writeTemp(kind Kind, data []byte) (string, error) {
	f, err := os.CreateTemp(s.dir, "."+kind.FileName()+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", kind.FileName(), err)
	}
	name := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write %s: %w", kind.FileName(), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to sync %s: %w", kind.FileName(), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close %s: %w", kind.FileName(), err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to chmod %s: %w", kind.FileName(), err)
	}
	return name, nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

type fileTx struct {
	store   *FileStore
	kinds   []Kind
	pending map[Kind][]byte
}

func (tx *fileTx) Load(kind Kind, out any) error {
	if !containsKind(tx.kinds, kind) {
		return fmt.Errorf("%w: %s", ErrKindNotLocked, kind)
	}
	if data, ok := tx.pending[kind]; ok {
		return decode(kind, data, out, tx.store.opts)
	}
	data, err := tx.store.read(kind)
	if err != nil {
		return err
	}
	return decode(kind, data, out, tx.store.opts)
}

func (tx *fileTx) Save(kind Kind, v any) error {
	if !containsKind(tx.kinds, kind) {
		return fmt.Errorf("%w: %s", ErrKindNotLocked, kind)
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	tx.pending[kind] = data
	return nil
}
