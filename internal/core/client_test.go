package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/applyflow/applyflow/internal/core"
	"github.com/applyflow/applyflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitReq() core.SubmitRequest {
	return core.SubmitRequest{
		JobExternalID: "hh-12345",
		CustomizedCV: models.CustomizedCV{
			ParsedCV: models.ParsedCV{FullName: "Jordan Doe", Skills: []string{"go"}},
		},
		CoverLetter: "Dear hiring team,",
	}
}

func TestSubmitApplication_Success(t *testing.T) {
	var gotSecret string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/applications/submit", r.URL.Path)
		gotSecret = r.Header.Get("X-Core-Secret")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"resumeId":      "res-1",
			"negotiationId": "neg-1",
		})
	}))
	defer srv.Close()

	c := core.NewHTTPClient(srv.URL, "s3cret", 5*time.Second)
	resp, err := c.SubmitApplication(context.Background(), submitReq())
	require.NoError(t, err)

	assert.Equal(t, "s3cret", gotSecret)
	assert.Equal(t, "hh-12345", gotBody["jobExternalId"])
	assert.Equal(t, "res-1", resp.ResumeID)
	assert.Equal(t, "neg-1", resp.NegotiationID)
	assert.NotEmpty(t, resp.Raw)
}

func TestSubmitApplication_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := core.NewHTTPClient(srv.URL, "s3cret", 5*time.Second)
	_, err := c.SubmitApplication(context.Background(), submitReq())
	require.Error(t, err)

	var apiErr *core.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestSubmitApplication_BadRequestCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"cv too large"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := core.NewHTTPClient(srv.URL, "s3cret", 5*time.Second)
	_, err := c.SubmitApplication(context.Background(), submitReq())

	var apiErr *core.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "cv too large")
}

func TestSubmitApplication_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := core.NewHTTPClient(srv.URL, "s3cret", 1*time.Second)
	_, err := c.SubmitApplication(context.Background(), submitReq())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCoreUnreachable), "got %v", err)
}

func TestSubmitApplication_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := core.NewHTTPClient(srv.URL, "s3cret", 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.SubmitApplication(ctx, submitReq())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCoreTimeout), "got %v", err)
}

func TestReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := core.NewHTTPClient(srv.URL, "s3cret", 5*time.Second)
	assert.NoError(t, c.Ready(context.Background()))
}

func TestReady_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := core.NewHTTPClient(srv.URL, "s3cret", 5*time.Second)
	err := c.Ready(context.Background())
	assert.True(t, errors.Is(err, core.ErrCoreUnreachable), "got %v", err)
}
