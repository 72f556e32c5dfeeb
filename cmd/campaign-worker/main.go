// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Command campaign-worker is the process entrypoint: it wires the Call
// Store, Event Router, Reconciler, Scheduler, and Audio Bridge together
// behind a small HTTP surface (telephony/STT webhooks, the media
// WebSocket upgrade, and a healthz probe), then runs the dispatch tick
// loop until told to shut down.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/api/option"

	"github.com/rapidaai/voicecampaign/internal/audiobridge"
	"github.com/rapidaai/voicecampaign/internal/callstore"
	"github.com/rapidaai/voicecampaign/internal/config"
	"github.com/rapidaai/voicecampaign/internal/eventrouter"
	"github.com/rapidaai/voicecampaign/internal/health"
	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/mediaws"
	"github.com/rapidaai/voicecampaign/internal/provider"
	"github.com/rapidaai/voicecampaign/internal/reconciler"
	"github.com/rapidaai/voicecampaign/internal/scheduler"

	openai "github.com/rapidaai/voicecampaign/internal/conversation/openai"
	deepgram "github.com/rapidaai/voicecampaign/internal/speech/deepgram"
	googletts "github.com/rapidaai/voicecampaign/internal/speech/googletts"
	twilio "github.com/rapidaai/voicecampaign/internal/telephony/twilio"
	vonage "github.com/rapidaai/voicecampaign/internal/telephony/vonage"

	"github.com/redis/go-redis/v9"
)

func main() {
	v, err := config.InitConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "campaign-worker: config init:", err)
		os.Exit(1)
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "campaign-worker: config load:", err)
		os.Exit(1)
	}

	logger, err := logging.NewApplicationLogger(logging.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "campaign-worker: logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := config.OpenDatabase(cfg.Postgres)
	if err != nil {
		logger.Fatalf("campaign-worker: database: %v", err)
	}

	metrics := health.NewMetrics()
	store := callstore.NewStore(db, logger)
	router := eventrouter.New(logger)
	webhookSink := eventrouter.NewWebhookSink(cfg.SigningSecret(), logger, metrics)

	telephonyProvider, err := buildTelephony(cfg, logger)
	if err != nil {
		logger.Fatalf("campaign-worker: telephony provider: %v", err)
	}

	schedulerOpts := []scheduler.Option{}
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		schedulerOpts = append(schedulerOpts, scheduler.WithLocker(scheduler.NewRedisLocker(redisClient, 30*time.Second)))
		logger.Infof("campaign-worker: dispatch lease backed by redis at %s", cfg.Redis.Address)
	}

	sched := scheduler.New(store, telephonyProvider, router, logger, metrics, cfg.PublicURL, cfg.DefaultCallerID, schedulerOpts...)
	recon := reconciler.New(store, router, logger, sched.OnCallCompleted)

	subscribeWebhookSinks(context.Background(), store, router, webhookSink, logger)

	stt := buildSpeechToText(cfg, logger)
	tts := buildTextToSpeech(cfg, logger)
	llm := buildConversationLLM(cfg, logger)

	correlator := audiobridge.NewCorrelator(logger)
	bridge := mediaws.NewBridge(correlator, sessionFactory(cfg, stt, tts, llm), logger, metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler(metrics))
	mux.HandleFunc("/webhooks/telephony", telephonyWebhookHandler(recon, logger))
	mux.HandleFunc("/webhooks/stt", sttWebhookHandler(bridge, logger))
	mux.Handle("/media", bridge)

	server := &http.Server{Addr: cfg.MediaListenAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("campaign-worker: listening on %s", cfg.MediaListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("campaign-worker: http server: %v", err)
		}
	}()

	runDispatchLoop(ctx, sched, cfg.DispatchTickSeconds, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("campaign-worker: http shutdown", "error", err)
	}
	logger.Infof("campaign-worker: shut down cleanly")
}

// runDispatchLoop ticks the Scheduler's processQueue across every active
// campaign until ctx is cancelled (spec §4.7/§9's graceful-shutdown
// supplement), using the same Ctx/Cancel convention the rest of this
// process's collaborators shut down on.
func runDispatchLoop(ctx context.Context, sched *scheduler.Scheduler, tickSeconds int, logger logging.Logger) {
	if tickSeconds <= 0 {
		tickSeconds = 2
	}
	ticker := time.NewTicker(time.Duration(tickSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sched.ProcessQueue(ctx, nil); err != nil {
				logger.Warnw("campaign-worker: dispatch tick failed", "error", err)
			}
		}
	}
}

// subscribeWebhookSinks wires the webhook sink onto every active
// campaign's configured URL at startup. New campaigns activated after
// boot are picked up on the next process restart — there is no campaign
// CRUD surface in this process (spec Non-goals).
func subscribeWebhookSinks(ctx context.Context, store callstore.Store, router *eventrouter.Router, sink *eventrouter.WebhookSink, logger logging.Logger) {
	campaigns, err := store.FindActiveCampaigns(ctx)
	if err != nil {
		logger.Warnw("campaign-worker: could not load campaigns for webhook subscription", "error", err)
		return
	}
	for _, c := range campaigns {
		if c.WebhookURL == nil || *c.WebhookURL == "" {
			continue
		}
		sink.Subscribe(router, c.Id, *c.WebhookURL)
	}
}

func buildTelephony(cfg *config.AppConfig, logger logging.Logger) (provider.Telephony, error) {
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		return twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, logger)
	}
	if cfg.VonageApplicationID != "" && cfg.VonagePrivateKey != "" {
		return vonage.New(cfg.VonageApplicationID, []byte(cfg.VonagePrivateKey), logger)
	}
	return nil, fmt.Errorf("no telephony provider configured: set twilio or vonage credentials")
}

// buildSpeechToText returns nil when no Deepgram key is configured — the
// Audio Bridge session tolerates a nil STT collaborator (spec §4.2: never
// a hard call abort for a missing speech credential).
func buildSpeechToText(cfg *config.AppConfig, logger logging.Logger) provider.SpeechToText {
	if cfg.DeepgramAPIKey == "" {
		logger.Warnf("campaign-worker: no deepgram api key configured, STT disabled")
		return nil
	}
	stt, err := deepgram.New(cfg.DeepgramAPIKey, logger)
	if err != nil {
		logger.Warnw("campaign-worker: deepgram init failed, STT disabled", "error", err)
		return nil
	}
	return stt
}

func buildTextToSpeech(cfg *config.AppConfig, logger logging.Logger) provider.TextToSpeech {
	var opts []option.ClientOption
	if cfg.GoogleServiceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.GoogleServiceAccountJSON)))
	}
	return googletts.New(opts, logger)
}

func buildConversationLLM(cfg *config.AppConfig, logger logging.Logger) provider.ConversationLLM {
	if cfg.OpenAIAPIKey == "" {
		logger.Warnf("campaign-worker: no openai api key configured, conversational replies disabled")
		return nil
	}
	llm, err := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)
	if err != nil {
		logger.Warnw("campaign-worker: openai init failed, conversational replies disabled", "error", err)
		return nil
	}
	return llm
}

// sessionFactory builds the Config audiobridge.NewSession needs for one
// call, resolving the STT webhook URL against the process's own public
// address (spec §6: the provider posts its callback to this process).
func sessionFactory(cfg *config.AppConfig, stt provider.SpeechToText, tts provider.TextToSpeech, llm provider.ConversationLLM) mediaws.SessionFactory {
	return func(callID string, campaignID *uint64) audiobridge.Config {
		return audiobridge.Config{
			CallID:     callID,
			CampaignID: campaignID,
			WebhookURL: cfg.PublicURL + "/webhooks/stt",
			STT:        stt,
			TTS:        tts,
			LLM:        llm,
		}
	}
}

func healthzHandler(metrics *health.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics.Snapshot())
	}
}

// telephonyLifecyclePayload is the inbound webhook body shape this
// process accepts from the telephony adapters' StatusCallback/EventUrl
// configuration (spec §4.6).
type telephonyLifecyclePayload struct {
	Type          string `json:"type"`
	CallSid       string `json:"callSid"`
	CampaignID    *uint64 `json:"campaignId"`
	Direction     string `json:"direction"`
	From          string `json:"from"`
	To            string `json:"to"`
	Status        string `json:"status"`
	Duration      int    `json:"duration"`
	RecordingSid  string `json:"recordingSid"`
	RecordingURL  string `json:"recordingUrl"`
	AmdResult     string `json:"amdResult"`
	AmdDurationMS int    `json:"amdDurationMs"`
}

func telephonyWebhookHandler(recon *reconciler.Reconciler, logger logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body telephonyLifecyclePayload
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Warnw("campaign-worker: malformed telephony webhook", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		evt := provider.LifecycleEvent{
			Type:          body.Type,
			CallSid:       body.CallSid,
			CampaignID:    body.CampaignID,
			Direction:     body.Direction,
			From:          body.From,
			To:            body.To,
			Status:        body.Status,
			Duration:      body.Duration,
			RecordingSid:  body.RecordingSid,
			RecordingURL:  body.RecordingURL,
			AmdResult:     body.AmdResult,
			AmdDurationMS: body.AmdDurationMS,
		}
		if err := recon.HandleLifecycleEvent(r.Context(), evt); err != nil {
			logger.Errorw("campaign-worker: lifecycle event handling failed", "callSid", body.CallSid, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// sttResultPayload is the inbound webhook body shape the async STT
// provider POSTs back (spec §4.3).
type sttResultPayload struct {
	RequestID string `json:"requestId"`
	CallID    string `json:"callId"`
	Text      string `json:"text"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

func sttWebhookHandler(bridge *mediaws.Bridge, logger logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body sttResultPayload
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Warnw("campaign-worker: malformed stt webhook", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		bridge.Deliver(r.Context(), provider.SpeechToTextResult{
			RequestID: body.RequestID,
			CallID:    body.CallID,
			Text:      body.Text,
			Language:  body.Language,
			IsFinal:   body.IsFinal,
		})
		w.WriteHeader(http.StatusOK)
	}
}
