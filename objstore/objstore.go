// Package objstore stores uploaded media under stable keys and serves it
// back through public URLs. The interface is the narrow contract the
// ingestion pipeline needs; Disk is the bundled implementation.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/copydesk/idgen"
)

// ErrNotFound is returned by Delete when the key does not exist.
var ErrNotFound = errors.New("objstore: object not found")

// Object identifies one stored item.
type Object struct {
	// URL is the public address the stored item is served from; it is
	// what placeholder maps reference.
	URL string `json:"url"`
	// Key is the storage-internal handle used for deletion.
	Key string `json:"key"`
}

// Store is the upload contract the pipeline depends on.
type Store interface {
	// Put stores data under folder with a name derived from filename.
	Put(ctx context.Context, data []byte, filename, folder string) (Object, error)
	// Delete removes a stored object by key.
	Delete(ctx context.Context, key string) error
}

// Disk stores objects on the local filesystem, served by the HTTP layer
// under a static route.
type Disk struct {
	root    string
	baseURL string
	keyGen  idgen.Generator
}

// NewDisk creates a Disk store rooted at root. baseURL is the public
// prefix objects are served under (e.g. "https://desk.example.com/media").
func NewDisk(root, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("objstore: create root: %w", err)
	}
	return &Disk{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		keyGen:  idgen.Timestamped(idgen.Default),
	}, nil
}

// Put writes data to <root>/<folder>/<timestamped-id><ext> and returns its
// public URL. The original filename contributes only its extension; user
// supplied names never reach the filesystem.
func (d *Disk) Put(ctx context.Context, data []byte, filename, folder string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	folder = cleanFolder(folder)

	ext := strings.ToLower(filepath.Ext(filename))
	name := d.keyGen() + ext
	key := path.Join(folder, name)

	dir := filepath.Join(d.root, filepath.FromSlash(folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Object{}, fmt.Errorf("objstore: mkdir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return Object{}, fmt.Errorf("objstore: write: %w", err)
	}

	return Object{URL: d.baseURL + "/" + urlEscapePath(key), Key: key}, nil
}

// Delete removes the object stored under key.
func (d *Disk) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean := cleanFolder(key)
	if clean == "" || clean != key {
		return fmt.Errorf("objstore: invalid key %q", key)
	}
	err := os.Remove(filepath.Join(d.root, filepath.FromSlash(clean)))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

// Root returns the directory objects live under, for the static file route.
func (d *Disk) Root() string { return d.root }

// cleanFolder normalizes a folder or key to a safe relative slash path.
// Traversal segments collapse away rather than erroring; Delete compares
// against the original to reject them.
func cleanFolder(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

func urlEscapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
