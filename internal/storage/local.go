package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

// Local stores objects as files under a root directory. Keys use forward
// slashes and map onto subdirectories.
type Local struct {
	root    string
	baseURL string
}

// NewLocal creates root if needed. URLs are baseURL/key, or file paths when
// baseURL is empty.
func NewLocal(root, baseURL string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// path resolves key under root. Dot segments cannot climb above root.
func (l *Local) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean[1:])), nil
}

func (l *Local) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	p, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", &core.PersistenceError{Op: "storage put", Err: err}
	}

	// Write-then-rename so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return "", &core.PersistenceError{Op: "storage put", Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", &core.PersistenceError{Op: "storage put", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", &core.PersistenceError{Op: "storage put", Err: err}
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return "", &core.PersistenceError{Op: "storage put", Err: err}
	}
	return l.URL(key), nil
}

func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "storage get", Err: err}
	}
	return data, nil
}

func (l *Local) Copy(ctx context.Context, src, dst string) error {
	data, err := l.Get(ctx, src)
	if err != nil {
		return err
	}
	_, err = l.Put(ctx, dst, data, "")
	return err
}

func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &core.PersistenceError{Op: "storage delete", Err: err}
	}
	return nil
}

func (l *Local) List(_ context.Context, prefix string) ([]core.ObjectInfo, error) {
	var out []core.ObjectInfo

	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, core.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, &core.PersistenceError{Op: "storage list", Err: err}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (l *Local) URL(key string) string {
	if l.baseURL == "" {
		return "file://" + filepath.ToSlash(filepath.Join(l.root, filepath.FromSlash(key)))
	}
	return l.baseURL + "/" + key
}

// Ping checks that the root directory is still accessible.
func (l *Local) Ping(context.Context) error {
	_, err := os.Stat(l.root)
	return err
}

var _ core.ObjectStore = (*Local)(nil)
