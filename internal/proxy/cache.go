package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/sdko-org/fetch-cache/internal/keys"
	"github.com/sdko-org/fetch-cache/internal/origin"
	"github.com/sdko-org/fetch-cache/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// WritePolicy decides whether a successful origin response waits for the
// store write.
type WritePolicy string

const (
	// WriteConfirmed awaits the write; a store error fails the request.
	WriteConfirmed WritePolicy = "confirmed"
	// WriteAsync writes in the background and only logs store errors.
	WriteAsync WritePolicy = "async"
)

// RedirectPolicy decides what happens to origin statuses outside 2xx and
// 4xx/5xx, i.e. 1xx and 3xx.
type RedirectPolicy string

const (
	RedirectPassthrough RedirectPolicy = "passthrough"
	RedirectSuccess     RedirectPolicy = "success"
	RedirectFailure     RedirectPolicy = "failure"
	RedirectError       RedirectPolicy = "error"
)

// Failing origin bodies are only read for the warn log.
const maxLoggedBody = 4 << 10

var ErrUnexpectedStatus = errors.New("unexpected status code from origin")

type Fetcher interface {
	Fetch(ctx context.Context, req origin.Request) (*http.Response, error)
}

type Store interface {
	PutIfAbsent(ctx context.Context, url string, body io.Reader, size int64) error
	Get(ctx context.Context, url string) (*storage.StoredObject, bool, error)
}

// Options configures a Cache. With Coalesce set, concurrent callers for one
// URL share a single origin fetch whose response is held fully in memory,
// regardless of SpoolMemoryLimit.
type Options struct {
	FallbackURL      string
	WritePolicy      WritePolicy
	RedirectPolicy   RedirectPolicy
	Coalesce         bool
	SpoolMemoryLimit int64
	TempDir          string
}

type action int

const (
	actionStore action = iota
	actionRecover
	actionPassthrough
	actionFail
)

type Cache struct {
	fetcher Fetcher
	store   Store
	opts    Options
	log     *logrus.Entry
	group   singleflight.Group
	writes  sync.WaitGroup
}

func New(logger *logrus.Logger, fetcher Fetcher, store Store, opts Options) *Cache {
	if opts.WritePolicy == "" {
		opts.WritePolicy = WriteConfirmed
	}
	if opts.RedirectPolicy == "" {
		opts.RedirectPolicy = RedirectPassthrough
	}
	return &Cache{
		fetcher: fetcher,
		store:   store,
		opts:    opts,
		log:     logger.WithField("component", "cache"),
	}
}

// CacheURL fetches url from its origin and returns the response, persisting
// it on success. On origin failure it serves the stored copy, or the
// fallback response when nothing is stored. The caller must close the
// response body.
func (c *Cache) CacheURL(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	if !c.opts.Coalesce {
		return c.cacheURL(ctx, url, header)
	}

	// The shared call must not fail because the first caller went away.
	v, err, shared := c.group.Do(keys.Derive(url), func() (interface{}, error) {
		resp, err := c.cacheURL(context.WithoutCancel(ctx), url, header)
		if err != nil {
			return nil, err
		}
		return takeSnapshot(resp)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.WithField("url", url).Debug("Joined in-flight request")
	}
	return v.(*snapshot).response(), nil
}

// Wait blocks until background cache writes have finished.
func (c *Cache) Wait() {
	c.writes.Wait()
}

func (c *Cache) cacheURL(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	log := c.log.WithField("url", url)

	ua := header.Get("User-Agent")
	if ua == "" {
		ua = origin.DefaultUserAgent
	}
	req := origin.Request{URL: url, Header: http.Header{}}
	req.Header.Set("User-Agent", ua)

	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		outcomes.WithLabelValues(outcomeError).Inc()
		return nil, err
	}

	switch c.classify(resp.StatusCode) {
	case actionStore:
		return c.storeResponse(ctx, log, url, resp)
	case actionRecover:
		return c.recoverResponse(ctx, log, url, resp)
	case actionPassthrough:
		outcomes.WithLabelValues(outcomePassthrough).Inc()
		log.WithField("status_code", resp.StatusCode).Info("Passing origin response through uncached")
		return resp, nil
	default:
		resp.Body.Close()
		outcomes.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

func (c *Cache) classify(status int) action {
	switch {
	case status >= 200 && status < 300:
		return actionStore
	case status >= 400:
		return actionRecover
	}
	switch c.opts.RedirectPolicy {
	case RedirectSuccess:
		return actionStore
	case RedirectFailure:
		return actionRecover
	case RedirectError:
		return actionFail
	default:
		return actionPassthrough
	}
}

// storeResponse returns resp with its body replaced by one spooled copy and
// writes the other copy to the store.
func (c *Cache) storeResponse(ctx context.Context, log *logrus.Entry, url string, resp *http.Response) (*http.Response, error) {
	body, dup, size, err := spoolBody(resp.Body, c.opts.TempDir, c.opts.SpoolMemoryLimit)
	resp.Body.Close()
	if err != nil {
		outcomes.WithLabelValues(outcomeError).Inc()
		return nil, &origin.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	resp.Body = body
	resp.ContentLength = size

	// Writes already started finish even if the caller disconnects.
	writeCtx := context.WithoutCancel(ctx)

	if c.opts.WritePolicy == WriteAsync {
		c.writes.Add(1)
		go func() {
			defer c.writes.Done()
			defer dup.Close()
			if err := c.store.PutIfAbsent(writeCtx, url, dup, size); err != nil {
				log.WithError(err).Error("Background cache write failed")
			}
		}()
		outcomes.WithLabelValues(outcomeCached).Inc()
		return resp, nil
	}

	err = c.store.PutIfAbsent(writeCtx, url, dup, size)
	dup.Close()
	if err != nil {
		body.Close()
		outcomes.WithLabelValues(outcomeError).Inc()
		log.WithError(err).Error("Cache write failed")
		return nil, err
	}
	outcomes.WithLabelValues(outcomeCached).Inc()
	return resp, nil
}

func (c *Cache) recoverResponse(ctx context.Context, log *logrus.Entry, url string, resp *http.Response) (*http.Response, error) {
	obj, found, err := c.store.Get(ctx, url)
	if err != nil {
		resp.Body.Close()
		outcomes.WithLabelValues(outcomeError).Inc()
		log.WithError(err).Error("Cache read failed")
		return nil, err
	}
	if found {
		resp.Body.Close()
		outcomes.WithLabelValues(outcomeCacheHit).Inc()
		log.WithFields(logrus.Fields{
			"key":         obj.Key,
			"status_code": resp.StatusCode,
		}).Info("Object found in store, returning cached response")
		return cachedResponse(obj), nil
	}

	snippet, rerr := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	resp.Body.Close()
	if rerr != nil {
		snippet = nil
	}
	log.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"body":        string(snippet),
	}).Warn("Object not found in store, returning fallback response")

	// The fallback is fetched plainly, without the caller's or the default
	// User-Agent.
	fb, err := c.fetcher.Fetch(ctx, origin.Request{
		URL:    c.opts.FallbackURL,
		Header: http.Header{"User-Agent": {""}},
	})
	if err != nil {
		outcomes.WithLabelValues(outcomeError).Inc()
		return nil, err
	}
	outcomes.WithLabelValues(outcomeFallback).Inc()
	return fb, nil
}

// cachedResponse is a plain 200 carrying only the stored body.
func cachedResponse(obj *storage.StoredObject) *http.Response {
	resp := &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          obj.Body,
		ContentLength: obj.Size,
	}
	if obj.Size >= 0 {
		resp.Header.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	return resp
}

// snapshot is a fully buffered response that can be handed to any number of
// coalesced callers.
type snapshot struct {
	status int
	header http.Header
	body   []byte
}

func takeSnapshot(resp *http.Response) (*snapshot, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read shared response: %w", err)
	}
	return &snapshot{status: resp.StatusCode, header: resp.Header.Clone(), body: b}, nil
}

func (s *snapshot) response() *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.status, http.StatusText(s.status)),
		StatusCode:    s.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        s.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(s.body)),
		ContentLength: int64(len(s.body)),
	}
}
