package origin

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// DefaultUserAgent is sent when the caller supplies none. Some origins
// reject requests that do not look like a browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_cache_origin_requests_total",
			Help: "Outbound origin requests by status class",
		},
		[]string{"class"}, // 1xx..5xx, error
	)

	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetch_cache_origin_request_duration_seconds",
			Help:    "Outbound origin request duration until response headers",
			Buckets: prometheus.DefBuckets,
		},
	)
)

type Request struct {
	URL    string
	Header http.Header
}

// FetchError is a transport-level failure. A response with any status code
// is not a FetchError.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Client struct {
	httpClient *http.Client
	log        *logrus.Entry
}

type loggingTransport struct {
	base http.RoundTripper
	log  *logrus.Entry
}

func NewClient(logger *logrus.Logger, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &loggingTransport{base: http.DefaultTransport, log: logger.WithField("component", "origin_transport")},
		},
		log: logger.WithField("component", "origin_client"),
	}
}

// Fetch issues a GET for req.URL, adding DefaultUserAgent when req.Header
// has no User-Agent entry. The caller must close the response body.
func (c *Client) Fetch(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	for k, v := range req.Header {
		httpReq.Header[k] = v
	}
	// An explicitly empty User-Agent sends none.
	if _, ok := httpReq.Header["User-Agent"]; !ok {
		httpReq.Header.Set("User-Agent", DefaultUserAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		c.log.WithError(err).WithField("url", req.URL).Error("Origin request failed")
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	fetchesTotal.WithLabelValues(strconv.Itoa(resp.StatusCode/100) + "xx").Inc()
	return resp, nil
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := t.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := t.base.RoundTrip(req)
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.WithError(err).Debug("HTTP request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}
