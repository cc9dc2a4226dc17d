package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Request bodies on POST are small JSON documents.
const maxPostBody = 1 << 20

type Cacher interface {
	CacheURL(ctx context.Context, url string, header http.Header) (*http.Response, error)
}

type ProxyHandler struct {
	cache    Cacher
	apiToken string
	log      *logrus.Entry
}

type postRequest struct {
	URL         string `json:"url"`
	AccessToken string `json:"access_token"`
}

func NewProxyHandler(logger *logrus.Logger, cache Cacher, apiToken string) *ProxyHandler {
	return &ProxyHandler{
		cache:    cache,
		apiToken: apiToken,
		log:      logger.WithField("component", "proxy_handler"),
	}
}

// HandleGet serves GET /?url=<target> with the target's content.
func (h *ProxyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	resp, err := h.cache.CacheURL(r.Context(), target, r.Header)
	if err != nil {
		h.internalError(w, target, err)
		return
	}
	defer resp.Body.Close()

	forwardResponse(w, resp)
}

// HandlePost caches the target named in the JSON body and returns an empty
// 200. The content itself is not returned.
func (h *ProxyHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPostBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.AccessToken), []byte(h.apiToken)) != 1 {
		h.log.WithField("client_ip", getClientIP(r)).Warn("Rejected request with invalid access token")
		http.Error(w, "invalid access token", http.StatusForbidden)
		return
	}
	if req.URL == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}

	resp, err := h.cache.CacheURL(r.Context(), req.URL, r.Header)
	if err != nil {
		h.internalError(w, req.URL, err)
		return
	}
	// Drain so spooled copies are released.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	w.WriteHeader(http.StatusOK)
}

func (h *ProxyHandler) internalError(w http.ResponseWriter, target string, err error) {
	h.log.WithError(err).WithField("url", target).Error("Request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}
