// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package mediaws is the telephony media transport (spec §6): a
// bidirectional WebSocket channel carrying JSON control messages and
// base64-encoded audio frames tagged with track and a monotonic chunk
// id. It upgrades inbound HTTP connections, creates one
// audiobridge.Session per callSid, and is the MediaWriter the session
// writes outbound TTS frames through. Grounded on
// birddigital-signalwire-telephony's pkg/telephony/signalwire-audio-bridge.go,
// generalized from a single provider's message shape to the Twilio/Vonage
// "Media Streams" convention the rest of the pack assumes.
package mediaws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/voicecampaign/internal/audiobridge"
	"github.com/rapidaai/voicecampaign/internal/codec"
	"github.com/rapidaai/voicecampaign/internal/health"
	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/provider"
)

var base64Encoding = base64.StdEncoding

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inboundEnvelope covers the union of message shapes the media transport
// receives (spec §6): "start" carries call identity and the negotiated
// codec, "media" carries one base64 audio frame.
type inboundEnvelope struct {
	Event string `json:"event"`
	Start struct {
		CallSid          string `json:"callSid"`
		StreamSid        string `json:"streamSid"`
		CustomParameters struct {
			CampaignID uint64 `json:"campaignId,string"`
		} `json:"customParameters"`
		MediaFormat struct {
			Encoding   string `json:"encoding"`
			SampleRate int    `json:"sampleRate"`
			Channels   int    `json:"channels"`
			BitDepth   int    `json:"bitDepth"`
		} `json:"mediaFormat"`
	} `json:"start"`
	Media struct {
		Track   string `json:"track"`
		Chunk   uint64 `json:"chunk,string"`
		Payload string `json:"payload"`
	} `json:"media"`
}

// outboundMediaMessage is one outbound TTS audio frame (spec §4.2 TTS
// streaming), matching the provider's expected "media" event shape.
type outboundMediaMessage struct {
	Event string `json:"event"`
	Media struct {
		Track   string `json:"track"`
		Chunk   uint64 `json:"chunk,string"`
		Payload string `json:"payload"`
	} `json:"media"`
}

// SessionFactory builds the collaborators a new Session needs, resolved
// per call so STT can be nil when credentials are absent (spec §4.2:
// "session init fails [for STT]... never a hard call abort").
type SessionFactory func(callID string, campaignID *uint64) audiobridge.Config

// Bridge is the process-wide registry of active media connections, kept
// as an explicit constructed value rather than a module-level singleton
// (spec §9 "BridgeRegistry... avoid module-level singletons so tests can
// run in parallel").
type Bridge struct {
	mu       sync.RWMutex
	sessions map[string]*audiobridge.Session

	correlator *audiobridge.Correlator
	factory    SessionFactory
	logger     logging.Logger
	metrics    *health.Metrics
}

// NewBridge constructs an empty Bridge.
func NewBridge(correlator *audiobridge.Correlator, factory SessionFactory, logger logging.Logger, metrics *health.Metrics) *Bridge {
	return &Bridge{
		sessions:   make(map[string]*audiobridge.Session),
		correlator: correlator,
		factory:    factory,
		logger:     logger,
		metrics:    metrics,
	}
}

// Session returns the active session for a callSid, if any.
func (b *Bridge) Session(callSid string) (*audiobridge.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[callSid]
	return s, ok
}

// ServeHTTP upgrades the connection and drives its read loop until the
// telephony provider closes it (spec §4.2 Fatal: "loss of the telephony
// transport -> session closes").
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warnw("mediaws: upgrade failed", "error", err)
		return
	}
	c := &connHandler{conn: conn, bridge: b}
	c.run()
}

// connHandler owns one WebSocket connection's lifecycle: resolving the
// callSid from the provider's "start" message, creating the session, and
// routing "media"/"stop" events.
type connHandler struct {
	conn    *websocket.Conn
	bridge  *Bridge
	mu      sync.Mutex
	session *audiobridge.Session
	callSid string
	closed  bool

	// mediaFormat is the codec/format negotiated in the "start" control
	// message (spec §4.2 step 2). Twilio/Vonage send it once per call, not
	// per frame, so it is cached here and applied to every "media" event
	// rather than read off the media envelope, which carries no format.
	mediaFormat        codec.AudioFormat
	mediaFormatPresent bool
}

// WriteMediaFrame implements audiobridge.MediaWriter: sends one outbound
// media event over the WebSocket (spec §4.2 TTS streaming).
func (c *connHandler) WriteMediaFrame(track string, chunk uint64, payload []byte) error {
	msg := outboundMediaMessage{Event: "media"}
	msg.Media.Track = track
	msg.Media.Chunk = chunk
	msg.Media.Payload = encodeBase64(payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.conn.WriteJSON(msg)
}

// Closed implements audiobridge.MediaWriter.
func (c *connHandler) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *connHandler) run() {
	defer c.close()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(raw)
	}
}

func (c *connHandler) handleMessage(raw []byte) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.bridge.logger.Warnw("mediaws: malformed control message", "error", err)
		return
	}

	switch envelope.Event {
	case "start":
		c.handleStart(envelope)
	case "media":
		c.handleMedia(envelope)
	case "stop":
		c.close()
	default:
		c.bridge.logger.Debugw("mediaws: unrecognized event", "event", envelope.Event)
	}
}

func (c *connHandler) handleStart(envelope inboundEnvelope) {
	callSid := envelope.Start.CallSid
	if callSid == "" {
		c.bridge.logger.Warnw("mediaws: start event missing callSid")
		return
	}

	var campaignID *uint64
	if envelope.Start.CustomParameters.CampaignID != 0 {
		id := envelope.Start.CustomParameters.CampaignID
		campaignID = &id
	}

	cfg := c.bridge.factory(callSid, campaignID)
	cfg.Media = c
	session := audiobridge.NewSession(cfg, c.bridge.logger, c.bridge.metrics)

	c.mu.Lock()
	c.callSid = callSid
	c.session = session
	if envelope.Start.MediaFormat.Encoding != "" {
		c.mediaFormat = codec.AudioFormat{
			Codec:      envelope.Start.MediaFormat.Encoding,
			SampleRate: envelope.Start.MediaFormat.SampleRate,
			Channels:   envelope.Start.MediaFormat.Channels,
			BitDepth:   envelope.Start.MediaFormat.BitDepth,
		}
		c.mediaFormatPresent = true
	}
	c.mu.Unlock()

	c.bridge.mu.Lock()
	c.bridge.sessions[callSid] = session
	c.bridge.mu.Unlock()
	c.bridge.correlator.Register(session)
}

func (c *connHandler) handleMedia(envelope inboundEnvelope) {
	c.mu.Lock()
	session := c.session
	format := c.mediaFormat
	formatPresent := c.mediaFormatPresent
	c.mu.Unlock()
	if session == nil {
		return
	}

	frame := audiobridge.InboundFrame{
		Track:         envelope.Media.Track,
		PayloadBase64: envelope.Media.Payload,
	}
	if formatPresent {
		frame.Format = format
		frame.FormatIsPresent = true
	}
	session.HandleInboundFrame(context.Background(), frame)
}

func (c *connHandler) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	session := c.session
	callSid := c.callSid
	c.mu.Unlock()

	if session != nil {
		session.Close()
		c.bridge.correlator.Unregister(callSid)
		c.bridge.mu.Lock()
		delete(c.bridge.sessions, callSid)
		c.bridge.mu.Unlock()
	}
	c.conn.Close()
}

// Deliver routes a correlated STT result to its owning session, exposed
// so the STT webhook handler (cmd/campaign-worker) can hand results to
// the Bridge's Correlator without reaching into internal state.
func (b *Bridge) Deliver(ctx context.Context, result provider.SpeechToTextResult) {
	b.correlator.Deliver(ctx, result)
}

func encodeBase64(payload []byte) string {
	return base64Encoding.EncodeToString(payload)
}
