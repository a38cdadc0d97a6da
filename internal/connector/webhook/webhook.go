// Package webhook receives Slack events and interactivity payloads over
// HTTP (the Events API), as an alternative to Socket Mode.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// Dispatcher is the part of slackconn.Dispatcher the endpoint needs.
type Dispatcher interface {
	EventsAPI(ctx context.Context, ev slackevents.EventsAPIEvent)
	Interaction(ctx context.Context, cb slack.InteractionCallback) any
}

// Handler serves the Slack Events API and interactivity request URLs.
type Handler struct {
	signingSecret string
	dispatcher    Dispatcher
	logger        *slog.Logger
}

// New creates a new Slack HTTP handler. Requests are verified against the
// app's signing secret.
func New(signingSecret string, dispatcher Dispatcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		signingSecret: signingSecret,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /slack/events", h.handleEvents)
	mux.HandleFunc("POST /slack/interactivity", h.handleInteractivity)
}

// readVerified reads the body and checks the Slack request signature.
func (h *Handler) readVerified(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return nil, false
	}

	sv, err := slack.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		h.logger.Warn("slack request rejected", "path", r.URL.Path, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	sv.Write(body)
	if err := sv.Ensure(); err != nil {
		h.logger.Warn("slack signature mismatch", "path", r.URL.Path)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readVerified(w, r)
	if !ok {
		return
	}

	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}

	switch ev.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "invalid challenge", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))
	case slackevents.CallbackEvent:
		// Slack redelivers events it thinks timed out; the first delivery
		// was already acknowledged and handled.
		if n := r.Header.Get("X-Slack-Retry-Num"); n != "" {
			h.logger.Debug("ignoring slack event retry", "retry", n, "reason", r.Header.Get("X-Slack-Retry-Reason"))
			w.WriteHeader(http.StatusOK)
			return
		}
		h.dispatcher.EventsAPI(context.WithoutCancel(r.Context()), ev)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) handleInteractivity(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readVerified(w, r)
	if !ok {
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(r.PostForm.Get("payload")), &cb); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	resp := h.dispatcher.Interaction(context.WithoutCancel(r.Context()), cb)
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ComputeSignature returns the X-Slack-Signature value for a request body
// sent at timestamp ts (Unix seconds).
func ComputeSignature(body []byte, secret, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", ts)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
