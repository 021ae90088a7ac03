package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/filex"
)

// FSStore keeps artifacts below a local directory that is also served
// statically under publicURL. Handles are the relative, slash separated
// paths.
type FSStore struct {
	root      string
	publicURL string
}

// NewFSStore creates root when missing.
func NewFSStore(root, publicURL string) (*FSStore, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	return &FSStore{root: abs, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Root is the absolute directory artifacts are written to.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) resolve(handle string) (string, error) {
	clean := path.Clean("/" + handle)
	if handle == "" || clean == "/" {
		return "", fmt.Errorf("%w: empty artifact handle", common.ErrorValidation)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}

func (s *FSStore) url(handle string) string {
	parts := strings.Split(strings.TrimPrefix(path.Clean("/"+handle), "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.publicURL + "/" + strings.Join(parts, "/")
}

// Put writes data at name, replacing an earlier artifact with the same name.
func (s *FSStore) Put(_ context.Context, name string, data []byte) (Artifact, error) {
	p, err := s.resolve(name)
	if err != nil {
		return Artifact{}, err
	}
	if err := filex.WriteFileAtomic(p, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("put artifact %s: %w", name, err)
	}
	return Artifact{Handle: name, URL: s.url(name)}, nil
}

func (s *FSStore) Get(_ context.Context, handle string) ([]byte, error) {
	p, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", handle, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", handle, err)
	}
	return data, nil
}

func (s *FSStore) Delete(_ context.Context, handle string) error {
	p, err := s.resolve(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete artifact %s: %w", handle, err)
	}
	return nil
}
