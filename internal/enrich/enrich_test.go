package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/tareqmamari/execintel/internal/errors"
	"github.com/tareqmamari/execintel/internal/model"
)

func classification() *model.FailureClassification {
	return &model.FailureClassification{
		FailureType: model.ProductDefect,
		Confidence:  0.88,
		Reason:      "Matched rule product_http_500",
		Evidence:    []string{"signal HTTP_ERROR (confidence 0.85): assert 500 == 200"},
	}
}

func enrichContext() Context {
	return Context{
		TestName:  "test_payment_flow",
		Framework: "pytest",
		Signals: []*model.FailureSignal{{
			SignalType: model.SignalHTTPError,
			Message:    "assert 500 == 200",
			Confidence: 0.85,
		}},
	}
}

func TestNoopReturnsNothing(t *testing.T) {
	insight, err := Noop{}.Enrich(context.Background(), classification(), enrichContext())
	require.NoError(t, err)
	assert.Nil(t, insight)
	assert.Equal(t, "noop", Noop{}.Name())
}

func TestHTTPEnrichSuccess(t *testing.T) {
	var captured enrichRequest
	var auth, agent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		agent = r.Header.Get("User-Agent")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(enrichResponse{
			Insights:        []string{"the 500 originates in the payment controller"},
			SuggestedFix:    "guard the charge amount against nil",
			SuggestedType:   "PRODUCT_DEFECT",
			Confidence:      0.8,
			ConfidenceDelta: 0.05,
		})
	}))
	defer server.Close()

	e, err := NewHTTP(HTTPConfig{
		Endpoint: server.URL,
		APIKey:   "secret-key",
		Model:    "triage-v2",
	}, "1.2.3", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()

	insight, err := e.Enrich(context.Background(), classification(), enrichContext())
	require.NoError(t, err)
	require.NotNil(t, insight)

	assert.Equal(t, "triage-v2", insight.Provider)
	assert.Equal(t, []string{"the 500 originates in the payment controller"}, insight.Insights)
	assert.Equal(t, "guard the charge amount against nil", insight.SuggestedFix)
	assert.InDelta(t, 0.8, insight.Confidence, 1e-9)
	assert.InDelta(t, 0.05, insight.ConfidenceDelta, 1e-9)

	assert.Equal(t, "Bearer secret-key", auth)
	assert.Equal(t, "execintel/1.2.3", agent)
	assert.Equal(t, "test_payment_flow", captured.TestName)
	assert.Equal(t, "PRODUCT_DEFECT", captured.FailureType)
	assert.Equal(t, "triage-v2", captured.Model)
	require.Len(t, captured.Signals, 1)
	assert.Equal(t, "HTTP_ERROR", captured.Signals[0].Type)
}

func TestHTTPEnrichRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(enrichResponse{Confidence: 0.7})
	}))
	defer server.Close()

	e, err := NewHTTP(HTTPConfig{Endpoint: server.URL, MaxRetries: 2}, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()

	insight, err := e.Enrich(context.Background(), classification(), enrichContext())
	require.NoError(t, err)
	require.NotNil(t, insight)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPEnrichDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	e, err := NewHTTP(HTTPConfig{Endpoint: server.URL, MaxRetries: 3}, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()

	insight, err := e.Enrich(context.Background(), classification(), enrichContext())
	require.Error(t, err)
	assert.Nil(t, insight)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")

	se := apperrors.AsStructured(err)
	require.NotNil(t, se)
	assert.Equal(t, apperrors.CodeEnrichmentRejected, se.Code)
	assert.False(t, apperrors.Transient(err))
}

func TestHTTPEnrichTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(enrichResponse{})
	}))
	defer server.Close()

	e, err := NewHTTP(HTTPConfig{
		Endpoint:   server.URL,
		Timeout:    50 * time.Millisecond,
		MaxRetries: 0,
	}, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Enrich(context.Background(), classification(), enrichContext())
	require.Error(t, err)
	se := apperrors.AsStructured(err)
	require.NotNil(t, se)
	assert.Equal(t, apperrors.CodeEnrichmentTimeout, se.Code)
}

func TestHTTPEnrichBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	e, err := NewHTTP(HTTPConfig{
		Endpoint:          server.URL,
		MaxRetries:        0,
		RequestsPerSecond: 1000,
		Burst:             10,
	}, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := e.Enrich(ctx, classification(), enrichContext())
		require.Error(t, err)
	}
	require.Equal(t, int32(3), calls.Load())

	_, err = e.Enrich(ctx, classification(), enrichContext())
	require.Error(t, err)
	se := apperrors.AsStructured(err)
	require.NotNil(t, se)
	assert.Equal(t, apperrors.CodeEnrichmentUnavailable, se.Code)
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not reach the endpoint")
}

func TestHTTPEnrichNilClassification(t *testing.T) {
	e, err := NewHTTP(HTTPConfig{Endpoint: "http://localhost:1"}, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	insight, err := e.Enrich(context.Background(), nil, Context{})
	require.NoError(t, err)
	assert.Nil(t, insight)
}

func TestNewHTTPRequiresEndpoint(t *testing.T) {
	_, err := NewHTTP(HTTPConfig{}, "", zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitConfig, apperrors.ExitCode(err))
}

func TestBreakerLifecycle(t *testing.T) {
	b := newBreaker(3, 20*time.Millisecond)

	assert.True(t, b.allow())
	b.failure()
	b.failure()
	assert.True(t, b.allow(), "below threshold stays closed")
	b.failure()
	assert.False(t, b.allow(), "threshold reached opens the breaker")

	time.Sleep(30 * time.Millisecond)
	assert.True(t, b.allow(), "cooldown elapsed allows a probe")

	b.failure()
	assert.False(t, b.allow(), "failed probe re-opens")

	time.Sleep(30 * time.Millisecond)
	require.True(t, b.allow())
	b.success()
	assert.True(t, b.allow(), "successful probe closes the breaker")
}
