// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package eventrouter

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rapidaai/voicecampaign/internal/health"
	"github.com/rapidaai/voicecampaign/internal/logging"
)

// WebhookSink delivers events to a campaign's configured webhook URL,
// signing each payload with HMAC-SHA256 (spec §6 "Webhook delivery is
// signed").
type WebhookSink struct {
	client  *resty.Client
	secret  string
	logger  logging.Logger
	metrics *health.Metrics
}

// NewWebhookSink builds a sink backed by a resty client with a bounded
// timeout, no retries, and at most one redirect hop followed.
func NewWebhookSink(secret string, logger logging.Logger, metrics *health.Metrics) *WebhookSink {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(1))

	return &WebhookSink{client: client, secret: secret, logger: logger, metrics: metrics}
}

// Deliver POSTs evt to url, signing the raw body with HMAC-SHA256 over
// the sink's secret and attaching it as X-Signature. Failures are
// counted and returned but never retried: delivery is at-most-once.
//
// Body shape is spec §4.5/§6's `{event, timestamp, …payload}`: the event
// type under "event", a "timestamp" key, and the event's fields (callSid,
// campaignId if present, and whatever evt.Payload carries) spread at the
// top level rather than nested under a "payload" key — matching scenario
// 6's worked example `{event:"call.ended", callSid:"X"}`.
func (w *WebhookSink) Deliver(ctx context.Context, url string, sentAt time.Time, evt Event) error {
	body := map[string]interface{}{
		"event":     evt.Type,
		"timestamp": sentAt.UTC().Format(time.RFC3339),
	}
	if evt.CallSid != "" {
		body["callSid"] = evt.CallSid
	}
	if evt.CampaignID != nil {
		body["campaignId"] = *evt.CampaignID
	}
	for k, v := range evt.Payload {
		body[k] = v
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("eventrouter: marshal webhook body: %w", err)
	}

	sig := w.sign(raw)

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Event", evt.Type).
		SetHeader("X-Signature", sig).
		SetBody(raw).
		Post(url)

	if err != nil {
		w.metrics.IncrWebhookFailures()
		return fmt.Errorf("eventrouter: deliver webhook to %s: %w", url, err)
	}
	if resp.IsError() {
		w.metrics.IncrWebhookFailures()
		return fmt.Errorf("eventrouter: webhook %s responded %d", url, resp.StatusCode())
	}
	return nil
}

func (w *WebhookSink) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Subscribe wires the sink as a Router handler for a campaign whose
// webhookURL is known, skipping delivery (rather than failing) when no
// URL is configured.
func (w *WebhookSink) Subscribe(r *Router, campaignID uint64, webhookURL string) func() {
	if webhookURL == "" {
		return func() {}
	}
	return r.SubscribeAll(campaignID, func(evt Event) error {
		return w.Deliver(context.Background(), webhookURL, time.Now(), evt)
	})
}
