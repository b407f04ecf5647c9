package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore lays logs out the way a static web server would serve them:
// <root>/<path>/did.jsonl, or <root>/.well-known/did.jsonl.
type FileStore struct {
	root   string
	logger *slog.Logger
}

type FileStoreArgs struct {
	Root   string
	Logger *slog.Logger
}

func NewFileStore(args *FileStoreArgs) (*FileStore, error) {
	if args.Root == "" {
		return nil, fmt.Errorf("root must be set")
	}

	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	if err := os.MkdirAll(args.Root, 0o755); err != nil {
		return nil, err
	}

	return &FileStore{
		root:   args.Root,
		logger: args.Logger,
	}, nil
}

func (s *FileStore) file(path string) (string, error) {
	p, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	if p == "" {
		p = ".well-known"
	}
	return filepath.Join(s.root, filepath.FromSlash(p), "did.jsonl"), nil
}

func (s *FileStore) Load(_ context.Context, path string) (string, error) {
	fn, err := s.file(path)
	if err != nil {
		return "", err
	}

	b, err := os.ReadFile(fn)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func (s *FileStore) Create(_ context.Context, path, did, line string) error {
	fn, err := s.file(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return ErrExists
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(singleLine(line) + "\n"); err != nil {
		return err
	}

	s.logger.Info("created log file", "did", did, "file", fn)

	return f.Sync()
}

func (s *FileStore) Append(_ context.Context, path, line string) error {
	fn, err := s.file(path)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_APPEND, 0)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(singleLine(line) + "\n"); err != nil {
		return err
	}

	s.logger.Info("appended to log file", "file", fn)

	return f.Sync()
}

var _ Store = (*FileStore)(nil)
