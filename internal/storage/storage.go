package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sdko-org/fetch-cache/internal/keys"
	"github.com/sirupsen/logrus"
)

// Backend is a blob store addressed by derived keys. Implementations do not
// need to guard against overwrites; Client only calls Put after Head has
// reported the key absent.
type Backend interface {
	// Head reports whether key exists without transferring the body.
	Head(ctx context.Context, key string) (bool, error)
	// Put writes body under key. size is -1 when unknown.
	Put(ctx context.Context, key string, body io.Reader, size int64, meta Metadata) error
	// Get returns the object under key. A missing key is (nil, false, nil).
	Get(ctx context.Context, key string) (*StoredObject, bool, error)
}

// Metadata is stored alongside every object. It is informational only and
// never used for lookups.
type Metadata struct {
	URL string
}

// StoredObject is a persisted response body. The caller must close Body.
type StoredObject struct {
	Key  string
	URL  string
	Size int64
	Body io.ReadCloser
}

// Error reports a failed call against the underlying store.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client addresses a Backend by URL and enforces write-once semantics.
type Client struct {
	backend Backend
	log     *logrus.Entry
}

func NewClient(logger *logrus.Logger, backend Backend) *Client {
	return &Client{
		backend: backend,
		log:     logger.WithField("component", "object_store"),
	}
}

func (c *Client) Exists(ctx context.Context, url string) (bool, error) {
	return c.exists(ctx, keys.Derive(url))
}

func (c *Client) exists(ctx context.Context, key string) (bool, error) {
	ok, err := c.backend.Head(ctx, key)
	if err != nil {
		storeOps.WithLabelValues("head", "error").Inc()
		return false, &Error{Op: "head", Key: key, Err: err}
	}
	storeOps.WithLabelValues("head", "ok").Inc()
	return ok, nil
}

// PutIfAbsent stores body for url unless an object already exists under the
// derived key. An existing object is never overwritten and is not an error.
func (c *Client) PutIfAbsent(ctx context.Context, url string, body io.Reader, size int64) error {
	key := keys.Derive(url)
	log := c.log.WithFields(logrus.Fields{
		"url": url,
		"key": key,
	})

	exists, err := c.exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		storeOps.WithLabelValues("put", "skipped").Inc()
		log.Info("Object already exists in store, skipping put")
		return nil
	}

	if body == nil {
		body = bytes.NewReader(nil)
		size = 0
	}

	start := time.Now()
	if err := c.backend.Put(ctx, key, body, size, Metadata{URL: url}); err != nil {
		storeOps.WithLabelValues("put", "error").Inc()
		return &Error{Op: "put", Key: key, Err: err}
	}
	storeOps.WithLabelValues("put", "ok").Inc()

	log.WithFields(logrus.Fields{
		"size":     size,
		"duration": time.Since(start),
	}).Info("Stored object")
	return nil
}

// Get returns the object stored for url. found is false, with a nil error,
// when nothing has been stored.
func (c *Client) Get(ctx context.Context, url string) (obj *StoredObject, found bool, err error) {
	key := keys.Derive(url)
	obj, found, err = c.backend.Get(ctx, key)
	if err != nil {
		storeOps.WithLabelValues("get", "error").Inc()
		return nil, false, &Error{Op: "get", Key: key, Err: err}
	}
	if !found {
		storeOps.WithLabelValues("get", "miss").Inc()
		return nil, false, nil
	}
	storeOps.WithLabelValues("get", "hit").Inc()
	if obj.Key == "" {
		obj.Key = key
	}
	return obj, true, nil
}
