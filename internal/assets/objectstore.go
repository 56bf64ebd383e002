package assets

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ObjectStore persists uploaded files (asset images, ownership documents)
// and returns a URL the catalog can reference.
type ObjectStore interface {
	Save(category, filename string, r io.Reader) (url string, err error)
}

// FSStore is an ObjectStore on the local filesystem. Files land under
// root/{category}/ with a random prefix so repeated uploads of the same
// filename never collide; URLs are baseURL joined with the relative path.
type FSStore struct {
	root    string
	baseURL string
}

// NewFSStore builds a filesystem store rooted at root, serving under baseURL.
func NewFSStore(root, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create object root %s", root)
	}
	return &FSStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *FSStore) Save(category, filename string, r io.Reader) (string, error) {
	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create category dir %s", category)
	}
	name := uuid.NewString()[:8] + "-" + sanitize(filename)
	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrapf(err, "create object %s", dst)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(dst)
		return "", errors.Wrapf(err, "write object %s", dst)
	}
	return s.baseURL + "/" + category + "/" + name, nil
}

// sanitize keeps the basename and replaces path-hostile characters.
func sanitize(filename string) string {
	base := filepath.Base(filename)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		base = "file"
	}
	return base
}
