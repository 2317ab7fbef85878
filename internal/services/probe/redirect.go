package probe

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

type httpOutcome struct {
	status   int
	header   http.Header
	body     []byte
	finalURL string
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// fetch issues the GET and walks the redirect chain by hand: relative
// Location resolved against the current URL, loops detected via a seen-URL
// set, at most cfg.MaxRedirects hops. When a hop would revisit a URL or the
// budget runs out, the response already in hand is the answer.
func (e *Engine) fetch(ctx context.Context, u *url.URL) (*httpOutcome, error) {
	current := u
	seen := map[string]struct{}{current.String(): {}}

	for hop := 0; ; hop++ {
		resp, err := e.get(ctx, current)
		if err != nil {
			return nil, err
		}

		next := redirectTarget(resp, current)
		if next == nil || hop >= e.cfg.MaxRedirects {
			return e.finish(resp, current)
		}
		if _, looped := seen[next.String()]; looped {
			return e.finish(resp, current)
		}
		seen[next.String()] = struct{}{}

		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		current = next
	}
}

func (e *Engine) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	return e.client.Do(req)
}

func redirectTarget(resp *http.Response, current *url.URL) *url.URL {
	if !isRedirect(resp.StatusCode) {
		return nil
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return nil
	}
	return current.ResolveReference(ref)
}

func (e *Engine) finish(resp *http.Response, current *url.URL) (*httpOutcome, error) {
	defer resp.Body.Close()

	out := &httpOutcome{
		status:   resp.StatusCode,
		header:   resp.Header,
		finalURL: current.String(),
	}
	if shouldSample(resp.Header.Get("Content-Type")) {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
		if err != nil && len(raw) == 0 {
			return out, nil
		}
		out.body = decode(raw, resp.Header.Get("Content-Encoding"), e.cfg.MaxBodyBytes)
	}
	return out, nil
}

// headerBlob flattens headers to "Key: v1, v2" lines, sorted for
// deterministic heuristics input.
func headerBlob(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(strings.Join(h[k], ", "))
		b.WriteString("\n")
	}
	return b.String()
}
