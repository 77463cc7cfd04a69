// Package relay receives checkout notifications, enriches them with sender
// context, and performs the single best-effort delivery to the collector
// endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cartsignal/checkout-agent/internal/models"
)

// maxResponseBody bounds the best-effort read of collector response bodies.
const maxResponseBody = 64 << 10

type Relay struct {
	log       *zap.Logger
	client    *http.Client
	endpoint  string
	userAgent string
}

// New builds a relay posting to endpoint. userAgent is the client
// identification string attached to every payload. A nil client gets a
// plain one; the delivery itself carries no timeout beyond the caller's ctx.
func New(log *zap.Logger, endpoint, userAgent string, client *http.Client) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Relay{
		log:       log,
		client:    client,
		endpoint:  endpoint,
		userAgent: userAgent,
	}
}

// Handle accepts a notification message. Messages without the checkout type
// tag are ignored and Handle reports false without touching respond; the
// channel carries other traffic that is not ours. For accepted messages
// Handle returns true immediately and respond fires exactly once, later,
// from the delivery goroutine.
func (r *Relay) Handle(ctx context.Context, msg models.Message, sender *models.Sender, respond func(models.Result)) bool {
	if msg.Type != models.EventCheckoutDetected {
		return false
	}
	if respond == nil {
		respond = func(models.Result) {}
	}
	payload := r.buildPayload(msg, sender)
	go func() {
		respond(r.deliver(ctx, payload))
	}()
	return true
}

// buildPayload enriches the message with ambient context. Sender-tab URL and
// title win; the message's own fields fill in only when no sender context is
// available.
func (r *Relay) buildPayload(msg models.Message, sender *models.Sender) models.Payload {
	p := models.Payload{
		URL:        msg.URL,
		Title:      msg.Title,
		DetectedAt: time.Now().UTC().Format(time.RFC3339),
		Source:     models.SourceContent,
		Signals:    msg.Signals,
		UserAgent:  r.userAgent,
	}
	if sender != nil {
		if sender.URL != "" {
			p.URL = sender.URL
		}
		if sender.Title != "" {
			p.Title = sender.Title
		}
		tabID := sender.TabID
		p.TabID = &tabID
	}
	return p
}

// deliver performs the one POST. Failures are terminal for the event: no
// retry, no queue.
func (r *Relay) deliver(ctx context.Context, payload models.Payload) models.Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.Result{OK: false, Error: fmt.Sprintf("encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.Result{OK: false, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Error("collector POST failed", zap.String("url", payload.URL), zap.Error(err))
		return models.Result{OK: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	// Body read is best-effort; it only feeds the non-OK log line.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.log.Warn("collector responded non-OK",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return models.Result{OK: false, Status: resp.StatusCode}
	}
	return models.Result{OK: true, Status: resp.StatusCode}
}
