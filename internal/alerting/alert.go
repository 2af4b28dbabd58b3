// Package alerting notifies an external channel whenever a request is
// classified into the VeryHigh risk band — the one tier meant to page
// someone, not just feed a dashboard. The in-memory Dispatcher is the
// default; NewCloudDispatcher durably enqueues the same alert onto Cloud
// Tasks when configured, falling back to the in-memory path on failure.
package alerting

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"

	"github.com/ocx/sentinel/internal/policy"
)

// signPayload computes the HMAC-SHA256 signature carried in the
// X-Sentinel-Signature header, the same scheme the teacher's outbound
// webhook stack used to let subscribers verify authenticity.
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Alert is the payload sent for a VeryHigh-risk classification. It carries
// enough context to triage without ever including raw IP or full UA.
type Alert struct {
	ID                string          `json:"id"`
	Timestamp         time.Time       `json:"timestamp"`
	Signature         string          `json:"signature"`
	RiskBand          policy.RiskBand `json:"risk_band"`
	BotProbability    float64         `json:"bot_probability"`
	Confidence        float64         `json:"confidence"`
	BotType           string          `json:"bot_type,omitempty"`
	BotName           string          `json:"bot_name,omitempty"`
	RecommendedAction policy.Action   `json:"recommended_action"`
	Path              string          `json:"path"`
	Method            string          `json:"method"`
}

// Notifier dispatches VeryHigh-risk alerts. Both Dispatcher and
// CloudDispatcher satisfy this.
type Notifier interface {
	Notify(a Alert)
	Shutdown()
}

// Dispatcher delivers alerts over HTTP to a single configured webhook URL
// via a small background worker pool, signing each payload with HMAC-SHA256
// the way the rest of the outbound-webhook stack does.
type Dispatcher struct {
	url        string
	secret     string
	httpClient *http.Client
	queue      chan Alert
	wg         sync.WaitGroup
}

// NewDispatcher starts a worker pool posting alerts to url. If url is empty,
// the returned Dispatcher accepts and silently drops every Notify call —
// alerting is a no-op until a webhook URL is configured.
func NewDispatcher(url, secret string, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	d := &Dispatcher{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan Alert, 256),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) Notify(a Alert) {
	if d.url == "" {
		return
	}
	select {
	case d.queue <- a:
	default:
		slog.Warn("alerting: queue full, dropping alert", "signature", a.Signature)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for a := range d.queue {
		d.deliver(a)
	}
}

func (d *Dispatcher) deliver(a Alert) {
	payload, err := json.Marshal(a)
	if err != nil {
		slog.Error("alerting: marshal failed", "error", err)
		return
	}
	req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		slog.Error("alerting: request build failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sentinel-Alert-ID", a.ID)
	if d.secret != "" {
		req.Header.Set("X-Sentinel-Signature", "sha256="+signPayload(payload, d.secret))
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		slog.Warn("alerting: delivery failed", "url", d.url, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		slog.Warn("alerting: webhook rejected alert", "status", resp.StatusCode, "signature", a.Signature)
	}
}

func (d *Dispatcher) Shutdown() {
	close(d.queue)
	d.wg.Wait()
}

// CloudDispatcher enqueues each alert as a Cloud Tasks HTTP task for
// durable, retried delivery, falling back to an in-memory Dispatcher when
// the enqueue itself fails.
type CloudDispatcher struct {
	client    *cloudtasks.Client
	queuePath string
	url       string
	secret    string
	fallback  *Dispatcher
}

// NewCloudDispatcher connects to the named Cloud Tasks queue. fallback may
// be nil if no in-memory backstop is wanted.
func NewCloudDispatcher(projectID, locationID, queueID, url, secret string, fallback *Dispatcher) (*CloudDispatcher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("alerting: cloudtasks.NewClient: %w", err)
	}
	return &CloudDispatcher{
		client:    client,
		queuePath: fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID),
		url:       url,
		secret:    secret,
		fallback:  fallback,
	}, nil
}

func (cd *CloudDispatcher) Notify(a Alert) {
	if cd.url == "" {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		slog.Error("alerting: marshal failed", "error", err)
		return
	}
	headers := map[string]string{
		"Content-Type":        "application/json",
		"X-Sentinel-Alert-ID": a.ID,
	}
	if cd.secret != "" {
		headers["X-Sentinel-Signature"] = "sha256=" + signPayload(payload, cd.secret)
	}
	req := &taskspb.CreateTaskRequest{
		Parent: cd.queuePath,
		Task: &taskspb.Task{
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        cd.url,
					Headers:    headers,
					Body:       payload,
				},
			},
		},
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := cd.client.CreateTask(ctx, req); err != nil {
			slog.Warn("alerting: cloud task enqueue failed, falling back", "error", err)
			if cd.fallback != nil {
				cd.fallback.Notify(a)
			}
		}
	}()
}

func (cd *CloudDispatcher) Shutdown() {
	if cd.fallback != nil {
		cd.fallback.Shutdown()
	}
	_ = cd.client.Close()
}
