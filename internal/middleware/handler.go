// Package middleware wires the detection engine into the HTTP request path:
// building a Fingerprint, deriving the request's signature, running the
// orchestrator, aggregating the verdict, and stamping the result onto
// response headers for whatever sits downstream (a reverse proxy, a gateway,
// or — in demo mode — the response itself).
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ocx/sentinel/internal/aggregator"
	"github.com/ocx/sentinel/internal/alerting"
	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/config"
	"github.com/ocx/sentinel/internal/learning"
	"github.com/ocx/sentinel/internal/metrics"
	"github.com/ocx/sentinel/internal/orchestrator"
	"github.com/ocx/sentinel/internal/policy"
	"github.com/ocx/sentinel/internal/registry"
	"github.com/ocx/sentinel/internal/signature"
)

// Engine bundles everything evaluate() needs: the wave orchestrator, the
// live registry (for EnabledCount), per-request state trackers, and the
// alert dispatcher for VeryHigh-risk bands.
type Engine struct {
	cfg     *config.Config
	reg     *registry.Registry
	orch    *orchestrator.Orchestrator
	names   *signature.RecentNames
	alerter alerting.Notifier
	metrics *metrics.Metrics
	sink    learning.Sink
}

// NewEngine builds an Engine from its already-constructed dependencies.
// alerter and sink may both be nil, in which case VeryHigh-band alerts and
// learning-record publication are simply skipped.
func NewEngine(cfg *config.Config, reg *registry.Registry, orch *orchestrator.Orchestrator, names *signature.RecentNames, alerter alerting.Notifier, m *metrics.Metrics, sink learning.Sink) *Engine {
	return &Engine{cfg: cfg, reg: reg, orch: orch, names: names, alerter: alerter, metrics: m, sink: sink}
}

// Evaluate runs the full detection pipeline for one request fingerprint and
// returns the aggregated verdict. The caller supplies ctx already carrying
// whatever deadline it wants enforced upstream of the orchestrator's own
// budget.
func (e *Engine) Evaluate(ctx context.Context, fp blackboard.Fingerprint) (aggregator.Evidence, error) {
	start := time.Now()

	sig, err := signature.Derive(fp, e.cfg.Signature.RootSecret, e.cfg.Signature.RotationSalt)
	if err != nil {
		slog.Warn("middleware: signature derivation failed", "error", err)
	}

	bb := blackboard.New(fp)
	if sig != "" {
		bb.SetSignature(sig)
	}

	result, err := e.orch.Run(ctx, bb)
	if err != nil {
		return aggregator.Evidence{}, err
	}

	evidence := aggregator.Aggregate(e.cfg, bb, result, e.reg.EnabledCount(), e.names)
	evidence.ProcessingMs = time.Since(start).Seconds() * 1000

	if e.metrics != nil {
		e.metrics.RecordRequest(result.DeadlineHit, time.Since(start).Seconds(), evidence.BotProbability, string(evidence.RecommendedAction), string(evidence.RiskBand))
	}

	if e.sink != nil {
		e.sink.Record(evidence)
	}

	if evidence.RiskBand == policy.RiskVeryHigh && e.alerter != nil {
		e.alerter.Notify(alerting.Alert{
			ID:                sig + "-" + strconv.FormatInt(start.UnixNano(), 36),
			Timestamp:         start,
			Signature:         sig,
			RiskBand:          evidence.RiskBand,
			BotProbability:    evidence.BotProbability,
			Confidence:        evidence.Confidence,
			BotType:           evidence.BotType,
			BotName:           evidence.BotName,
			RecommendedAction: evidence.RecommendedAction,
			Path:              fp.Path,
			Method:            fp.Method,
		})
	}

	return evidence, nil
}

// Handler wraps next with the detection pipeline, stamping the verdict onto
// response headers before delegating. It never blocks the request on the
// recommended action — enforcement (challenge, block, throttle) is left to
// whatever reads X-Bot-* downstream, per spec's separation of detection from
// enforcement.
func (e *Engine) Handler(next http.Handler) http.Handler {
	if e.cfg.Demo.Enabled {
		slog.Warn("middleware: demo mode enabled — verbose diagnostics will be exposed on every response, do not run this in production")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp := FingerprintFromRequest(r)

		deadline := time.Duration(e.cfg.Engine.OverallDeadlineMs) * time.Millisecond
		ctx, cancel := context.WithTimeout(r.Context(), deadline)
		defer cancel()

		evidence, err := e.Evaluate(ctx, fp)
		if err != nil {
			slog.Error("middleware: evaluate failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		stampHeaders(w, evidence, e.cfg.Demo.Enabled)
		next.ServeHTTP(w, r)
	})
}

// FingerprintFromRequest extracts a blackboard.Fingerprint from the raw HTTP
// request. TLS/TCP/HTTP2-level fields are left zero-valued here; a
// TLS-terminating proxy or the tcpcollect sidecar populate them upstream by
// annotating the request before it reaches this handler (see
// internal/tcpcollect).
func FingerprintFromRequest(r *http.Request) blackboard.Fingerprint {
	fp := blackboard.Fingerprint{
		UserAgent:      r.UserAgent(),
		IP:             remoteIP(r),
		Path:           r.URL.Path,
		Method:         r.Method,
		Headers:        r.Header,
		HTTPVersion:    r.Proto,
		ClientFeatures: map[string]string{},
	}

	if tls := r.TLS; tls != nil {
		fp.TLSVersion = tlsVersionName(tls.Version)
		if len(tls.PeerCertificates) > 0 {
			fp.ALPN = tls.NegotiatedProtocol
		}
	}
	fp.TLSJA3 = r.Header.Get("X-JA3-Fingerprint")
	fp.TLSJA4 = r.Header.Get("X-JA4-Fingerprint")
	fp.TCPOSGuess = r.Header.Get("X-TCP-OS-Guess")
	fp.Datacenter = r.Header.Get("X-Datacenter-IP") == "true"

	if geo := r.Header.Get("X-Geo-Mismatch"); geo != "" {
		fp.ClientFeatures["geo_mismatch"] = geo
	}

	return fp
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}

func tlsVersionName(v uint16) string {
	switch v {
	case 0x0304:
		return "TLS1.3"
	case 0x0303:
		return "TLS1.2"
	case 0x0302:
		return "TLS1.1"
	case 0x0301:
		return "TLS1.0"
	default:
		return "unknown"
	}
}

func stampHeaders(w http.ResponseWriter, e aggregator.Evidence, demo bool) {
	h := w.Header()
	h.Set("X-Bot-Detected", strconv.FormatBool(e.IsBot))
	h.Set("X-Bot-Confidence", strconv.FormatFloat(e.Confidence, 'f', 3, 64))
	h.Set("X-Bot-Probability", strconv.FormatFloat(e.BotProbability, 'f', 3, 64))
	h.Set("X-Bot-Risk-Band", string(e.RiskBand))
	h.Set("X-Bot-Policy", e.PolicyName)
	h.Set("X-Bot-Processing-Ms", strconv.FormatInt(int64(math.Round(e.ProcessingMs)), 10))
	if e.BotType != "" {
		h.Set("X-Bot-Type", e.BotType)
	}
	if e.BotName != "" {
		h.Set("X-Bot-Name", e.BotName)
	}

	if !demo {
		return
	}

	h.Set("X-Bot-Signature", e.PrimarySignature)
	if contribs, err := json.Marshal(e.Contributions); err == nil {
		h.Set("X-Bot-Diagnostic", string(contribs))
	}
}
