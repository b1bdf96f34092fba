package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
)

// BotStatus is the operator view of the running bot.
type BotStatus struct {
	Handle        string               `json:"handle"`
	SilentMode    bool                 `json:"silent_mode"`
	Window        string               `json:"window"`
	MaxReplies    int                  `json:"max_replies_per_window"`
	RecentReplies int                  `json:"recent_replies"`
	Participants  map[string]int       `json:"participants,omitempty"`
	Cursors       map[string]string    `json:"cursors,omitempty"`
	LastPolls     map[string]time.Time `json:"last_polls,omitempty"`
}

// StatusProvider builds a status snapshot. It is called from HTTP handler
// goroutines and must be safe for concurrent use.
type StatusProvider interface {
	Status(ctx context.Context) (BotStatus, error)
}

// StatusHandler serves the provider's snapshot as JSON.
func StatusHandler(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if provider == nil {
			respondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "bot status not available"))
			return
		}
		status, err := provider.Status(r.Context())
		if err != nil {
			envelope := errors.NewErrorEnvelope("DATABASE_ERROR", "failed to read bot state")
			envelope, _ = envelope.WithContext(map[string]interface{}{"wrapped_error": err.Error()})
			respondWithError(w, r, envelope)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}
