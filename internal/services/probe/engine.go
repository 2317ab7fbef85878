package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/config"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/check"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
	"github.com/scottbadams/ITWebsiteMonitor/internal/obs"
)

var (
	ErrDNS           = errors.New("dns failure")
	ErrTCP           = errors.New("tcp failure")
	ErrHTTPTransport = errors.New("http transport failure")
)

// Resolver and Dialer are the engine's network seams, mockable in tests.
type Resolver interface {
	LookupIP(ctx context.Context, host string) ([]net.IP, error)
}

type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

type netResolver struct{ r *net.Resolver }

func (n netResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	return n.r.LookupIP(ctx, "ip", host)
}

// Engine turns one target into one ProbeResult: DNS, TCP connect, HTTP GET
// with a manual redirect chain, body sample, login heuristics. Transport
// failures are normal outcomes, never errors; the only thing that escapes a
// probe is its result.
type Engine struct {
	cfg      config.ProbeCfg
	client   *http.Client
	resolver Resolver
	dialer   Dialer
	log      *zap.Logger
}

var (
	mProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probe_total", Help: "Probes by outcome",
	}, []string{"result"})
	mProbeDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "probe_duration_seconds", Help: "Wall time of one probe",
		Buckets: prometheus.DefBuckets,
	})
)

func NewEngine(cfg config.ProbeCfg, log *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		client:   newHTTPClient(cfg),
		resolver: netResolver{r: net.DefaultResolver},
		dialer:   &net.Dialer{Timeout: 10 * time.Second},
		log:      log.With(zap.String("component", "probe")),
	}
}

// Probe runs the full pipeline for one target under the per-target timeout,
// linked to the cycle's cancellation.
func (e *Engine) Probe(ctx context.Context, t *target.Target) *check.ProbeResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	tr := otel.Tracer("probe")
	ctx, span := tr.Start(ctx, "probe.target")
	span.SetAttributes(attribute.Int64("target.id", t.ID), attribute.String("target.url", t.URL))
	log := obs.WithTrace(ctx, e.log)

	// The span carries the first transport failure of the pipeline; transport
	// failures are still normal probe outcomes, never Go errors.
	var perr error
	defer func() { obs.EndSpan(span, perr) }()

	res := &check.ProbeResult{TargetID: t.ID, Timestamp: time.Now().UTC()}
	defer func() {
		res.Summary = summarize(res)
		mProbeDur.Observe(time.Since(start).Seconds())
		if res.Healthy() {
			mProbes.WithLabelValues("up").Inc()
		} else {
			mProbes.WithLabelValues("down").Inc()
		}
	}()

	u, err := url.Parse(t.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		log.Warn("unprobeable url", zap.Int64("target", t.ID), zap.String("url", t.URL))
		return res
	}

	ips, err := e.resolver.LookupIP(ctx, u.Hostname())
	if err != nil {
		perr = fmt.Errorf("%w: %v", ErrDNS, err)
		log.Debug("dns", zap.Int64("target", t.ID), zap.Error(perr))
		ips = nil
	}

	if err := e.probeTCP(ctx, res, u, ips); err != nil {
		log.Debug("tcp connect", zap.Int64("target", t.ID), zap.Error(err))
		if perr == nil {
			perr = err
		}
	}
	if err := e.probeHTTP(ctx, res, t, u); err != nil {
		log.Debug("http", zap.Int64("target", t.ID), zap.Error(err))
		if perr == nil {
			perr = err
		}
	}
	if res.Healthy() {
		perr = nil
	}
	return res
}

func portOf(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}

// probeTCP tries each resolved address in order and records the first that
// accepts a connection. With no addresses it falls back to connecting by
// hostname, leaving UsedIP unset. The returned error is the transport
// failure when nothing accepted.
func (e *Engine) probeTCP(ctx context.Context, res *check.ProbeResult, u *url.URL, ips []net.IP) error {
	port := portOf(u)
	start := time.Now()
	defer func() { res.TCPLatencyMS = time.Since(start).Milliseconds() }()

	if len(ips) == 0 {
		conn, err := e.dialer.DialContext(ctx, "tcp", net.JoinHostPort(u.Hostname(), port))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTCP, err)
		}
		_ = conn.Close()
		res.TCPOk = true
		return nil
	}

	first := ips[0].String()
	res.UsedIP = &first
	var lastErr error
	for _, ip := range ips {
		conn, err := e.dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), port))
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		res.TCPOk = true
		addr := ip.String()
		res.UsedIP = &addr
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTCP, lastErr)
}

func (e *Engine) probeHTTP(ctx context.Context, res *check.ProbeResult, t *target.Target, u *url.URL) error {
	start := time.Now()
	out, err := e.fetch(ctx, u)
	res.HTTPLatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHTTPTransport, err)
	}

	code := out.status
	res.HTTPStatusCode = &code
	res.FinalURL = &out.finalURL

	min, max := t.ExpectedStatusMin, t.ExpectedStatusMax
	if min == 0 {
		min = target.DefaultExpectedStatusMin
	}
	if max == 0 {
		max = target.DefaultExpectedStatusMax
	}
	res.HTTPOk = code >= min && code <= max

	detected, loginType := classify(t.LoginRule, out.finalURL, headerBlob(out.header), string(out.body))
	res.LoginDetected = detected
	res.DetectedLoginType = loginType

	// An authentication wall answering 401/403 is a reachable service, not
	// an outage.
	if !res.HTTPOk && (code == http.StatusUnauthorized || code == http.StatusForbidden) && detected {
		res.HTTPOk = true
	}
	return nil
}

func summarize(r *check.ProbeResult) string {
	tcp := fmt.Sprintf("TCP %s (%dms)", okFail(r.TCPOk), r.TCPLatencyMS)
	if r.HTTPStatusCode == nil {
		return fmt.Sprintf("%s; HTTP FAIL (no response, %dms)", tcp, r.HTTPLatencyMS)
	}
	return fmt.Sprintf("%s; HTTP %s (%d, %dms)", tcp, okFail(r.HTTPOk), *r.HTTPStatusCode, r.HTTPLatencyMS)
}

func okFail(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAIL"
}
