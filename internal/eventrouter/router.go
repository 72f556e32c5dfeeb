// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package eventrouter is the internal pub/sub fabric (spec §4.5): the
// Reconciler, Scheduler, and Retry Planner publish lifecycle events onto
// topics, and any number of handlers — including the webhook sink —
// subscribe without knowing about each other.
package eventrouter

import (
	"fmt"
	"sync"

	"github.com/rapidaai/voicecampaign/internal/logging"
)

// Event is the envelope every publish carries (spec §4.5/§4.6).
// CampaignID is nil for calls with no owning campaign (e.g. inbound
// calls, or any call the Scheduler didn't originate) — those events
// still reach unfiltered subscribers, just not campaign-scoped ones.
type Event struct {
	Type       string // e.g. "call.started", "call.ended", "recording.ended"
	CampaignID *uint64
	CallSid    string
	Payload    map[string]interface{}
}

// Handler processes one event. A handler error is logged and isolated —
// it never stops delivery to the remaining subscribers (spec §4.5).
type Handler func(evt Event) error

const globalWildcardTopic = "*"

// Topic derives the unfiltered topic name for an event type (spec §4.5
// grammar: `<domain>.<event>`, e.g. "call.started"). Subscribers on this
// topic receive the event regardless of campaign.
func Topic(eventType string) string {
	return eventType
}

// campaignTopic derives the campaign-scoped topic name (spec §4.5
// grammar: `<domain>.<event>.campaign.<campaignId>`).
func campaignTopic(campaignID uint64, eventType string) string {
	return fmt.Sprintf("%s.campaign.%d", eventType, campaignID)
}

// campaignWildcardTopic is the per-campaign catch-all subscribers can use
// to observe every event type for one campaign without one Subscribe
// call per type.
func campaignWildcardTopic(campaignID uint64) string {
	return fmt.Sprintf("*.campaign.%d", campaignID)
}

// Router is a synchronous, in-process topic registry. Publish blocks
// until every subscribed handler has run (spec §4.5: "delivery is
// synchronous within a single process; no cross-node fanout").
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	seq      uint64
	logger   logging.Logger
}

type subscription struct {
	id      uint64
	handler Handler
}

// New constructs an empty Router.
func New(logger logging.Logger) *Router {
	return &Router{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler on a specific campaign/eventType topic.
// It returns an unsubscribe function.
func (r *Router) Subscribe(campaignID uint64, eventType string, h Handler) func() {
	return r.subscribeTopic(campaignTopic(campaignID, eventType), h)
}

// SubscribeAll registers a handler for every event type published for a
// campaign, regardless of type.
func (r *Router) SubscribeAll(campaignID uint64, h Handler) func() {
	return r.subscribeTopic(campaignWildcardTopic(campaignID), h)
}

// SubscribeUnfiltered registers a handler on the unfiltered topic for one
// event type — it receives every event of that type regardless of which
// campaign (or no campaign) the event carries. This is the mechanism
// spec §4.5 requires for a `registerWebhook`/listener with no campaign
// filter (e.g. a cross-campaign audit subscriber).
func (r *Router) SubscribeUnfiltered(eventType string, h Handler) func() {
	return r.subscribeTopic(Topic(eventType), h)
}

// SubscribeAllUnfiltered registers a handler for every event type
// published by any campaign, or none.
func (r *Router) SubscribeAllUnfiltered(h Handler) func() {
	return r.subscribeTopic(globalWildcardTopic, h)
}

func (r *Router) subscribeTopic(topic string, h Handler) func() {
	r.mu.Lock()
	r.seq++
	id := r.seq
	r.handlers[topic] = append(r.handlers[topic], subscription{id: id, handler: h})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.handlers[topic]
		for i, s := range subs {
			if s.id == id {
				r.handlers[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers evt to the unfiltered topic, the global wildcard, and
// — when evt.CampaignID is set — the campaign-scoped topic and the
// campaign's wildcard topic (spec §4.5: "delivers ... to the unfiltered
// topic and (if the event carries campaignId) to the campaign-scoped
// topic"). A panicking or erroring handler is logged and does not block
// its siblings.
func (r *Router) Publish(evt Event) {
	topics := make([]string, 0, 4)
	topics = append(topics, Topic(evt.Type), globalWildcardTopic)
	if evt.CampaignID != nil {
		topics = append(topics, campaignTopic(*evt.CampaignID, evt.Type), campaignWildcardTopic(*evt.CampaignID))
	}

	r.mu.RLock()
	var subs []subscription
	for _, t := range topics {
		subs = append(subs, r.handlers[t]...)
	}
	r.mu.RUnlock()

	for _, s := range subs {
		r.invoke(s.handler, evt)
	}
}

func (r *Router) invoke(h Handler, evt Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorw("eventrouter: handler panicked", "event", evt.Type, "panic", p)
		}
	}()
	if err := h(evt); err != nil {
		r.logger.Errorw("eventrouter: handler failed", "event", evt.Type, "error", err)
	}
}
