package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubStatus struct {
	status BotStatus
	err    error
}

func (s stubStatus) Status(context.Context) (BotStatus, error) {
	return s.status, s.err
}

func TestStatusHandler(t *testing.T) {
	provider := stubStatus{status: BotStatus{
		Handle:        "wordpad.test",
		SilentMode:    true,
		Window:        "20m0s",
		MaxReplies:    3,
		RecentReplies: 2,
		Participants:  map[string]int{"alice.test": 2},
	}}

	rec := httptest.NewRecorder()
	StatusHandler(provider)(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got BotStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, provider.status, got)
}

func TestStatusHandlerErrors(t *testing.T) {
	t.Run("StoreFailure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		StatusHandler(stubStatus{err: errors.New("no such table")})(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("NoProvider", func(t *testing.T) {
		rec := httptest.NewRecorder()
		StatusHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
