// Package preflight validates caller-supplied URLs before expensive research
// begins: format checks plus bounded-concurrency reachability probes.
package preflight

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// maxConcurrent caps the reachability worker pool.
	maxConcurrent = 6

	// requestTimeout bounds each individual probe.
	requestTimeout = 9 * time.Second
)

// Result reports the outcome of a preflight check. A run proceeds only when
// InvalidFormat and Unreachable are both empty: one bad seed wastes the rest
// of the run, so partial success is not accepted.
type Result struct {
	Cleaned       []string `json:"cleaned"`
	InvalidFormat []string `json:"invalid_format,omitempty"`
	Unreachable   []string `json:"unreachable,omitempty"`
}

// OK reports whether every URL passed.
func (r Result) OK() bool {
	return len(r.InvalidFormat) == 0 && len(r.Unreachable) == 0
}

// Checker validates URL lists ahead of a pipeline run.
type Checker struct {
	http *http.Client
}

// NewChecker creates a Checker. A nil client gets a default with the
// per-request timeout applied.
func NewChecker(hc *http.Client) *Checker {
	if hc == nil {
		hc = &http.Client{Timeout: requestTimeout}
	}
	return &Checker{http: hc}
}

// Check parses every URL as an absolute http(s) URL and, when
// requireReachable is set, probes each with a HEAD request (falling back to
// GET when HEAD is rejected). Probes run in a bounded worker pool.
func (c *Checker) Check(ctx context.Context, urls []string, requireReachable bool) Result {
	var res Result

	for _, raw := range urls {
		cleaned := strings.TrimSpace(raw)
		u, err := url.Parse(cleaned)
		if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			res.InvalidFormat = append(res.InvalidFormat, raw)
			continue
		}
		res.Cleaned = append(res.Cleaned, cleaned)
	}

	if !requireReachable || len(res.InvalidFormat) > 0 || len(res.Cleaned) == 0 {
		return res
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for _, u := range res.Cleaned {
		g.Go(func() error {
			if !c.reachable(gCtx, u) {
				mu.Lock()
				res.Unreachable = append(res.Unreachable, u)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// Deterministic ordering for error messages and tests.
	sort.Strings(res.Unreachable)
	return res
}

// reachable probes a URL with HEAD, then GET when the server rejects HEAD
// with a method error. Network errors, timeouts, and non-success statuses
// all count as unreachable.
func (c *Checker) reachable(ctx context.Context, target string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	status, err := c.probe(reqCtx, http.MethodHead, target)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = c.probe(reqCtx, http.MethodGet, target)
	}
	if err != nil {
		zap.L().Debug("preflight: probe failed", zap.String("url", target), zap.Error(err))
		return false
	}
	return status >= 200 && status < 400
}

func (c *Checker) probe(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
