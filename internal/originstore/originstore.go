// Package originstore implements the canonical origin's read-only image
// store (spec §4.1): serve get_image/get_image_size straight off disk,
// by image id, with no caching or replication concerns of its own.
// Grounded on original_source/server/canonical_server.py's
// get_image_path/handle_request, restructured into handler-per-function
// shape like internal/dispatcher rather than the original's single
// if/elif chain.
package originstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/distribuidos-Coffee-Shop-Analysis/edge-cdn/internal/protocol"
)

// Store serves images from a fixed directory. Unlike cachestore, Store
// never writes: Dir is expected to be pre-populated (spec §4.1, "the
// origin's image set is fixed at deploy time").
type Store struct {
	Dir string
}

// New builds a Store rooted at dir. The directory must already exist;
// unlike cachestore.New, originstore does not create it, since a
// missing origin image directory is a deployment error worth failing
// loudly on.
func New(dir string) (*Store, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("originstore: image directory %s: %w", dir, err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(id int64) string {
	return filepath.Join(s.Dir, fmt.Sprintf("image%d.jpg", id))
}

// ErrNotFound is returned by Get/GetSize when no image with the given id
// exists on the origin, matching the canonical server's
// "image<id>.jpg not found on canonical server" error text in spirit.
type ErrNotFound int64

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("image%d.jpg not found on canonical server", int64(e))
}

// Get returns the complete bytes for id.
func (s *Store) Get(id int64) ([]byte, error) {
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound(id)
		}
		return nil, fmt.Errorf("originstore: read image %d: %w: %w", id, protocol.ErrIOError, err)
	}
	return b, nil
}

// GetSize returns the on-disk size for id without reading its contents.
func (s *Store) GetSize(id int64) (int64, error) {
	fi, err := os.Stat(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound(id)
		}
		return 0, fmt.Errorf("originstore: stat image %d: %w: %w", id, protocol.ErrIOError, err)
	}
	return fi.Size(), nil
}
