package detectors

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/llmclient"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// pathSkeletonRe matches path segments that look like opaque IDs (numeric,
// UUID-shaped, or long hex/base62 tokens) so the prompt carries the route
// shape without any identifier that could reconstruct a specific visitor.
var pathSkeletonRe = regexp.MustCompile(`/[0-9]+|/[0-9a-fA-F-]{8,}`)

// LLMDetector escalates ambiguous requests to an external classifier. It
// only fires inside the configured trigger band around p=0.5 — requests
// already confidently bot or human gain nothing from the extra latency and
// cost.
type LLMDetector struct {
	client      *llmclient.Client
	triggerLow  float64
	triggerHigh float64
	timeout     time.Duration
}

// NewLLMDetector builds the escalation detector. The manifest's bot_weight /
// human_weight (applied by the orchestrator) already carry the "configured
// LLM weight" from spec; this detector returns a raw [0,1] confidence.
func NewLLMDetector(client *llmclient.Client, triggerLow, triggerHigh float64, timeout time.Duration) *LLMDetector {
	return &LLMDetector{client: client, triggerLow: triggerLow, triggerHigh: triggerHigh, timeout: timeout}
}

func (d *LLMDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	if d.client == nil || !d.client.IsReady() {
		return orchestrator.Outcome{}, nil
	}

	heuristic, ok := bb.Get("detection.heuristic.bot_score")
	if !ok {
		return orchestrator.Outcome{}, nil
	}
	p := heuristic.AsReal()
	if p < d.triggerLow || p > d.triggerHigh {
		return orchestrator.Outcome{}, nil
	}

	verdict, err := d.client.Complete(ctx, llmclient.Request{
		Prompt:      buildPrompt(bb),
		Temperature: 0.1,
		MaxTokens:   150,
		Timeout:     d.timeout,
	})
	if err != nil {
		slog.Warn("detectors: llm escalation failed, dropping contribution", "error", err)
		return orchestrator.Outcome{}, nil
	}

	_ = bb.Publish("detection.llm.is_bot", blackboard.BoolSignal(verdict.IsBot))
	_ = bb.Publish("detection.llm.confidence", blackboard.RealSignal(verdict.Confidence))
	_ = bb.Publish("detection.llm.label", blackboard.StrSignal(verdict.BotType))

	if verdict.IsBot {
		return orchestrator.Outcome{BotScore: verdict.Confidence, Category: verdict.BotType, Rationale: verdict.Reasoning}, nil
	}
	return orchestrator.Outcome{HumanScore: verdict.Confidence, Category: verdict.BotType, Rationale: verdict.Reasoning}, nil
}

// buildPrompt renders the classification task from derived properties only:
// the primary signature (already a one-way hash), the browser family the UA
// claims, method, and a path skeleton with identifier segments blanked out.
// Never the raw IP or UA string.
func buildPrompt(bb *blackboard.Context) string {
	fp := bb.Fingerprint
	family, _ := bb.Get("detection.ua.browser_family")
	skeleton := pathSkeletonRe.ReplaceAllString(fp.Path, "/:id")

	var b strings.Builder
	b.WriteString("Classify whether this HTTP request looks automated.\n")
	fmt.Fprintf(&b, "signature: %s\n", truncate(bb.Signature(), 16))
	fmt.Fprintf(&b, "method: %s\n", fp.Method)
	fmt.Fprintf(&b, "path_skeleton: %s\n", skeleton)
	fmt.Fprintf(&b, "claimed_browser: %s\n", family.AsStr())
	fmt.Fprintf(&b, "http_version: %s\n", fp.HTTPVersion)
	b.WriteString(`Respond with JSON only: {"is_bot":bool,"confidence":0..1,"bot_type":string,"reasoning":string}`)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
