package enrich

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/tareqmamari/execintel/internal/errors"
	"github.com/tareqmamari/execintel/internal/model"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRPS     = 1
	defaultBurst   = 3

	retryWaitMin = 500 * time.Millisecond
	retryWaitMax = 8 * time.Second

	breakerThreshold = 3
	breakerCooldown  = 60 * time.Second
)

// HTTPConfig configures the HTTP enricher.
type HTTPConfig struct {
	Endpoint          string
	APIKey            string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
}

// HTTPEnricher POSTs the classification to an external AI endpoint and
// maps the JSON reply onto an Insight. Calls are rate limited, retried
// on transient failures only, and cut off by a circuit breaker after
// repeated failures so a dead endpoint cannot stall a batch.
type HTTPEnricher struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *breaker
	logger  *zap.Logger
	version string
}

// NewHTTP builds the HTTP enricher. Zero timeout and rate fields get
// defaults (30s, 1 request/second, burst 3); MaxRetries is taken as
// given, so zero means a single attempt.
func NewHTTP(cfg HTTPConfig, version string, logger *zap.Logger) (*HTTPEnricher, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, apperrors.NewInvalidConfig("ai.endpoint is required when enrichment is enabled")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if version == "" {
		version = "dev"
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &HTTPEnricher{
		cfg:     cfg,
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: newBreaker(breakerThreshold, breakerCooldown),
		logger:  logger.Named("enrich"),
		version: version,
	}, nil
}

func (e *HTTPEnricher) Name() string { return "http" }

// enrichRequest is the wire format sent to the AI endpoint.
type enrichRequest struct {
	TestName      string               `json:"test_name"`
	Framework     string               `json:"framework,omitempty"`
	FailureType   string               `json:"failure_type"`
	Confidence    float64              `json:"confidence"`
	Reason        string               `json:"reason"`
	Evidence      []string             `json:"evidence,omitempty"`
	Signals       []enrichSignal       `json:"signals,omitempty"`
	CodeReference *model.CodeReference `json:"code_reference,omitempty"`
	Model         string               `json:"model,omitempty"`
}

type enrichSignal struct {
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}

// enrichResponse is the reply the endpoint is expected to return.
type enrichResponse struct {
	Insights        []string `json:"insights"`
	SuggestedFix    string   `json:"suggested_fix"`
	SuggestedType   string   `json:"suggested_type"`
	Confidence      float64  `json:"confidence"`
	ConfidenceDelta float64  `json:"confidence_delta"`
}

// Enrich sends the classification for advisory analysis. Transient
// failures (429, 5xx, network) are retried with exponential backoff;
// anything else fails immediately and the analysis proceeds without AI.
func (e *HTTPEnricher) Enrich(ctx context.Context, cls *model.FailureClassification, ec Context) (*Insight, error) {
	if cls == nil {
		return nil, nil
	}
	if !e.breaker.allow() {
		return nil, apperrors.NewEnrichmentUnavailable("enrichment circuit breaker is open")
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewEnrichmentTimeout()
	}

	payload := enrichRequest{
		TestName:      ec.TestName,
		Framework:     ec.Framework,
		FailureType:   string(cls.FailureType),
		Confidence:    cls.Confidence,
		Reason:        cls.Reason,
		Evidence:      ec.Evidence,
		CodeReference: ec.CodeReference,
		Model:         e.cfg.Model,
	}
	for _, sig := range ec.Signals {
		payload.Signals = append(payload.Signals, enrichSignal{
			Type:       string(sig.SignalType),
			Message:    sig.Message,
			Confidence: sig.Confidence,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("marshal enrichment request: %v", err))
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt)
			e.logger.Debug("retrying enrichment request",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				e.breaker.failure()
				return nil, apperrors.NewEnrichmentTimeout()
			}
		}

		insight, err := e.doRequest(ctx, body)
		if err == nil {
			e.breaker.success()
			return insight, nil
		}
		lastErr = err
		if !apperrors.Transient(err) {
			break
		}
	}
	e.breaker.failure()
	return nil, lastErr
}

func (e *HTTPEnricher) doRequest(ctx context.Context, body []byte) (*Insight, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInvalidConfig(fmt.Sprintf("ai.endpoint: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "execintel/"+e.version)
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Debug("enrichment request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return nil, classifyNetworkError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			e.logger.Warn("failed to close enrichment response body", zap.Error(closeErr))
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("read enrichment response: %v", err))
	}
	e.logger.Debug("enrichment request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_size", len(respBody)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.FromHTTPStatus(resp.StatusCode, snippet(respBody))
	}

	var parsed enrichResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperrors.NewEnrichmentRejected(resp.StatusCode,
			fmt.Sprintf("undecodable response body: %v", err))
	}
	provider := e.cfg.Model
	if provider == "" {
		provider = "ai"
	}
	return &Insight{
		Provider:        provider,
		Insights:        parsed.Insights,
		SuggestedFix:    parsed.SuggestedFix,
		SuggestedType:   parsed.SuggestedType,
		Confidence:      parsed.Confidence,
		ConfidenceDelta: parsed.ConfidenceDelta,
	}, nil
}

// Close releases idle connections.
func (e *HTTPEnricher) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// classifyNetworkError separates timeouts from other network failures so
// retry decisions and error codes line up.
func classifyNetworkError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewEnrichmentTimeout()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewEnrichmentTimeout()
	}
	return apperrors.NewNetworkError(err.Error())
}

// backoff returns the wait before the given retry attempt: 500ms doubling
// per attempt, capped at 8s, with up to 25% jitter.
func backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 10 {
		shift = 10
	}
	wait := retryWaitMin * time.Duration(1<<shift)
	if wait > retryWaitMax {
		wait = retryWaitMax
	}
	return wait + time.Duration(rand.Int63n(int64(wait)/4+1))
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
