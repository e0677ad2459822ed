// Package trigger handles non-manual pipeline triggers: push webhooks
// and cron schedules.
package trigger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"path"

	"pipeliner/internal/apperrors"
	"pipeliner/internal/pipeline"
	"pipeliner/internal/run"
)

// ErrBadSignature is returned when a webhook signature does not match the body.
var ErrBadSignature = errors.New("signature mismatch")

// PushEvent is the payload of a source-repository push notification.
type PushEvent struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Commit     string `json:"commit,omitempty"`
}

// RunStarter starts pipeline runs. Implemented by run.Service.
type RunStarter interface {
	Trigger(ctx context.Context, req *run.Request) (*run.Response, error)
}

// PushHandler turns verified push notifications into pipeline runs.
type PushHandler struct {
	registry *pipeline.Registry
	runs     RunStarter
	secret   string
	logger   *slog.Logger
}

// NewPushHandler creates a push handler. An empty secret disables
// signature verification.
func NewPushHandler(registry *pipeline.Registry, runs RunStarter, secret string) *PushHandler {
	return &PushHandler{
		registry: registry,
		runs:     runs,
		secret:   secret,
		logger:   slog.With("component", "push"),
	}
}

// Handle verifies the webhook signature, decodes the push event and starts
// a run for every registered pipeline whose push trigger matches the branch.
func (h *PushHandler) Handle(ctx context.Context, body []byte, signature string) ([]*run.Response, error) {
	if h.secret != "" {
		if err := VerifySignature(body, h.secret, signature); err != nil {
			return nil, err
		}
	}

	var event PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperrors.Validation("body", "invalid push payload: "+err.Error())
	}
	if event.Branch == "" {
		return nil, apperrors.Validation("branch", "push event branch is required")
	}

	responses := make([]*run.Response, 0)
	for _, p := range h.registry.List() {
		if !Matches(p, &event) {
			continue
		}

		resp, err := h.runs.Trigger(ctx, &run.Request{
			Pipeline: p.Name,
			Trigger:  run.TriggerPush,
			Branch:   event.Branch,
		})
		if err != nil {
			h.logger.Error("Failed to start push-triggered run",
				"pipeline", p.Name,
				"branch", event.Branch,
				"error", err)
			continue
		}

		h.logger.Info("Push-triggered run started",
			"pipeline", p.Name,
			"runId", resp.ID,
			"branch", event.Branch)
		responses = append(responses, resp)
	}

	return responses, nil
}

// Matches reports whether a push event should trigger the given pipeline.
// A pipeline matches when it declares a push trigger and the event branch
// matches one of its branch patterns (no patterns means all branches).
func Matches(p *pipeline.Pipeline, event *PushEvent) bool {
	if p.On.Push == nil {
		return false
	}
	if len(p.On.Push.Branches) == 0 {
		return true
	}
	for _, pattern := range p.On.Push.Branches {
		if ok, err := path.Match(pattern, event.Branch); err == nil && ok {
			return true
		}
	}
	return false
}

// VerifySignature checks an HMAC-SHA256 webhook signature (the
// "sha256=<hex>" form carried in X-Signature-256) against the raw body.
func VerifySignature(body []byte, key, signature string) error {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
