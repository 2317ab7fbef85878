package probe

import (
	"compress/gzip"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/config"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(config.ProbeCfg{
		Timeout:      10 * time.Second,
		UserAgent:    "WebsiteMonitor",
		MaxRedirects: 12,
		MaxBodyBytes: 512 << 10,
	}, zap.NewNop())
}

func testTarget(url string) *target.Target {
	return &target.Target{
		ID:                1,
		InstanceID:        "main",
		URL:               url,
		Enabled:           true,
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
	}
}

func TestProbeHealthy(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<h1>all good</h1>"))
	}))
	defer srv.Close()

	res := testEngine(t).Probe(context.Background(), testTarget(srv.URL))

	require.True(t, res.TCPOk)
	require.True(t, res.HTTPOk)
	require.NotNil(t, res.HTTPStatusCode)
	require.Equal(t, 200, *res.HTTPStatusCode)
	require.NotNil(t, res.UsedIP)
	require.Equal(t, "127.0.0.1", *res.UsedIP)
	require.NotNil(t, res.FinalURL)
	require.Equal(t, srv.URL, *res.FinalURL)
	require.False(t, res.LoginDetected)
	require.Equal(t, "WebsiteMonitor", gotUA)
	require.Regexp(t, `^TCP OK \(\d+ms\); HTTP OK \(200, \d+ms\)$`, res.Summary)
}

func TestProbeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := testEngine(t).Probe(context.Background(), testTarget(srv.URL))

	require.True(t, res.TCPOk)
	require.False(t, res.HTTPOk)
	require.Equal(t, 500, *res.HTTPStatusCode)
	require.Regexp(t, `HTTP FAIL \(500, \d+ms\)$`, res.Summary)
}

func TestProbeLoginGated401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`<form><input type="password" name="pw"></form>`))
	}))
	defer srv.Close()

	res := testEngine(t).Probe(context.Background(), testTarget(srv.URL))

	require.True(t, res.HTTPOk, "401 with a login surface counts as reachable")
	require.Equal(t, 401, *res.HTTPStatusCode)
	require.True(t, res.LoginDetected)
	require.Equal(t, LoginPasswordForm, *res.DetectedLoginType)
}

func TestProbe403WithoutLoginStaysDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))
	defer srv.Close()

	res := testEngine(t).Probe(context.Background(), testTarget(srv.URL))

	require.False(t, res.HTTPOk)
	require.False(t, res.LoginDetected)
}

func TestProbeFollowsRedirectChain(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		// relative Location must resolve against the current URL
		w.Header().Set("Location", "final")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>landed</p>"))
	})

	res := testEngine(t).Probe(context.Background(), testTarget(srv.URL+"/a"))

	require.True(t, res.HTTPOk)
	require.Equal(t, 200, *res.HTTPStatusCode)
	require.Equal(t, srv.URL+"/final", *res.FinalURL)
}

func TestProbeRedirectLoopReturnsLastResponse(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/y", http.StatusFound)
	})
	mux.HandleFunc("/y", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/x", http.StatusFound)
	})

	res := testEngine(t).Probe(context.Background(), testTarget(srv.URL+"/x"))

	require.Equal(t, 302, *res.HTTPStatusCode)
	require.Equal(t, srv.URL+"/y", *res.FinalURL)
}

func TestProbeRedirectBudget(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	})

	e := NewEngine(config.ProbeCfg{
		Timeout:      10 * time.Second,
		UserAgent:    "WebsiteMonitor",
		MaxRedirects: 3,
		MaxBodyBytes: 512 << 10,
	}, zap.NewNop())

	res := e.Probe(context.Background(), testTarget(srv.URL+"/"))
	require.Equal(t, 302, *res.HTTPStatusCode)
}

func TestProbeSamplesGzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte(`<title>Nextcloud</title>`))
		_ = zw.Close()
	}))
	defer srv.Close()

	res := testEngine(t).Probe(context.Background(), testTarget(srv.URL))

	require.True(t, res.LoginDetected)
	require.Equal(t, LoginNextcloud, *res.DetectedLoginType)
}

func TestProbeUnparsableURL(t *testing.T) {
	res := testEngine(t).Probe(context.Background(), testTarget("ftp://example.com/"))

	require.False(t, res.TCPOk)
	require.False(t, res.HTTPOk)
	require.Nil(t, res.HTTPStatusCode)
	require.Equal(t, "TCP FAIL (0ms); HTTP FAIL (no response, 0ms)", res.Summary)
}

func TestProbeConnectionRefused(t *testing.T) {
	// Grab a port that is certainly closed.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	res := testEngine(t).Probe(context.Background(), testTarget("http://"+addr+"/"))

	require.False(t, res.TCPOk)
	require.False(t, res.HTTPOk)
	require.Nil(t, res.HTTPStatusCode)
	require.NotNil(t, res.UsedIP)
	require.Equal(t, "127.0.0.1", *res.UsedIP)
	require.Regexp(t, `^TCP FAIL \(\d+ms\); HTTP FAIL \(no response, \d+ms\)$`, res.Summary)
}

func TestProbeSkipsBinaryBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(`type="password"`))
	}))
	defer srv.Close()

	res := testEngine(t).Probe(context.Background(), testTarget(srv.URL))

	require.True(t, res.HTTPOk)
	require.False(t, res.LoginDetected, "binary bodies are not sampled")
}
