package provisioning

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallcc/purchase-bot/internal/order/application"
	"github.com/marshallcc/purchase-bot/internal/order/domain"
)

func TestIssueCredentialMockMode(t *testing.T) {
	c := New(slog.New(slog.DiscardHandler), "http://unused", true)
	assert.NoError(t, c.IssueCredential(context.Background(), domain.RegionUK, "jane_doe_01", "s"))
}

func TestIssueCredential(t *testing.T) {
	var got issueRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/credentials", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(slog.New(slog.DiscardHandler), srv.URL, false)
	require.NoError(t, c.IssueCredential(context.Background(), domain.RegionDE, "jane_doe_01", "s"))
	assert.Equal(t, issueRequest{Region: "DE", Handle: "jane_doe_01", Secret: "s"}, got)
}

func TestIssueCredentialHandleTaken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := New(slog.New(slog.DiscardHandler), srv.URL, false)
	err := c.IssueCredential(context.Background(), domain.RegionUK, "jane_doe_01", "s")
	assert.ErrorIs(t, err, application.ErrHandleTaken)
}

func TestIssueCredentialServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(slog.New(slog.DiscardHandler), srv.URL, false)
	err := c.IssueCredential(context.Background(), domain.RegionUK, "jane_doe_01", "s")
	require.Error(t, err)
	assert.NotErrorIs(t, err, application.ErrHandleTaken)
}
