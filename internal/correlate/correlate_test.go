package correlate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tareqmamari/execintel/internal/model"
)

var base = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func autoEvent(offset time.Duration, level model.LogLevel, msg string) *model.ExecutionEvent {
	return &model.ExecutionEvent{
		Timestamp:     base.Add(offset),
		Level:         level,
		Source:        "pytest",
		Message:       msg,
		LogSourceType: model.SourceAutomation,
	}
}

func appEvent(offset time.Duration, level model.LogLevel, service, msg string) *model.ExecutionEvent {
	return &model.ExecutionEvent{
		Timestamp:     base.Add(offset),
		Level:         level,
		Source:        service,
		ServiceName:   service,
		Message:       msg,
		LogSourceType: model.SourceApplication,
	}
}

func httpSignal(code string) *model.FailureSignal {
	return &model.FailureSignal{
		SignalType: model.SignalHTTPError,
		Message:    "assert 500 == 200 on POST /api/payment",
		Confidence: 0.85,
		Metadata:   map[string]string{model.MetadataStatusCode: code},
	}
}

func TestCorrelateNoApplicationEvents(t *testing.T) {
	c := New(Config{}, zaptest.NewLogger(t))
	events := []*model.ExecutionEvent{
		autoEvent(0, model.LevelInfo, "test started"),
		autoEvent(2*time.Second, model.LevelError, "assert 500 == 200"),
	}
	res := c.Correlate(events, []*model.FailureSignal{httpSignal("500")})
	assert.False(t, res.Matched)
	assert.Empty(t, res.Evidence)
}

func TestCorrelateStatusCode(t *testing.T) {
	c := New(Config{}, zaptest.NewLogger(t))
	events := []*model.ExecutionEvent{
		autoEvent(0, model.LevelInfo, "test_payment started"),
		autoEvent(2*time.Second, model.LevelError, "assert 500 == 200"),
		appEvent(1*time.Second, model.LevelError, "payment-service",
			"Unhandled exception processing POST /api/payment: returning 500"),
	}

	res := c.Correlate(events, []*model.FailureSignal{httpSignal("500")})
	require.True(t, res.Matched)
	assert.Equal(t, BasisStatusCode, res.Basis)
	assert.Equal(t, "payment-service", res.ServiceName)
	assert.Contains(t, res.Sample, "POST /api/payment")
	require.Len(t, res.Evidence, 2)
	assert.Contains(t, res.Evidence[0], `"payment-service"`)
	assert.Contains(t, res.Evidence[1], "HTTP status 500")
}

func TestCorrelateStatusCodeViaMetadata(t *testing.T) {
	c := New(Config{}, zaptest.NewLogger(t))
	app := appEvent(time.Second, model.LevelWarn, "gateway", "upstream request rejected")
	app.Metadata = map[string]string{model.MetadataStatusCode: "503"}
	events := []*model.ExecutionEvent{
		autoEvent(0, model.LevelError, "request failed"),
		app,
	}

	res := c.Correlate(events, []*model.FailureSignal{httpSignal("503")})
	require.True(t, res.Matched)
	assert.Equal(t, BasisStatusCode, res.Basis)
}

func TestCorrelateExceptionType(t *testing.T) {
	c := New(Config{}, zaptest.NewLogger(t))
	auto := autoEvent(2*time.Second, model.LevelError, "request blew up")
	auto.ExceptionType = "NullPointerException"
	events := []*model.ExecutionEvent{
		autoEvent(0, model.LevelInfo, "test started"),
		auto,
		appEvent(3*time.Second, model.LevelError, "payment-service",
			"java.lang.NullPointerException at PaymentController.charge(PaymentController.java:88)"),
	}

	res := c.Correlate(events, nil)
	require.True(t, res.Matched)
	assert.Equal(t, BasisExceptionType, res.Basis)
	assert.Contains(t, res.Evidence[1], "NullPointerException")
}

func TestCorrelateSharedTokens(t *testing.T) {
	c := New(Config{}, zaptest.NewLogger(t))
	sig := &model.FailureSignal{
		SignalType: model.SignalConnectionError,
		Message:    "connection refused to payment gateway endpoint",
		Confidence: 0.85,
	}
	events := []*model.ExecutionEvent{
		autoEvent(0, model.LevelError, "connection refused to payment gateway endpoint"),
		appEvent(5*time.Second, model.LevelWarn, "payment-service",
			"payment gateway endpoint connection pool exhausted"),
	}

	res := c.Correlate(events, []*model.FailureSignal{sig})
	require.True(t, res.Matched)
	assert.Equal(t, BasisSharedTokens, res.Basis)
	assert.Contains(t, res.Evidence[1], "distinctive tokens")
}

func TestCorrelateTooFewSharedTokens(t *testing.T) {
	c := New(Config{MinSharedTokens: 3}, zaptest.NewLogger(t))
	sig := &model.FailureSignal{
		SignalType: model.SignalAssertion,
		Message:    "expected banner text to equal Welcome",
		Confidence: 0.9,
	}
	events := []*model.ExecutionEvent{
		autoEvent(0, model.LevelError, "expected banner text to equal Welcome"),
		appEvent(time.Second, model.LevelWarn, "cms", "banner cache refreshed"),
	}

	res := c.Correlate(events, []*model.FailureSignal{sig})
	assert.False(t, res.Matched)
}

func TestCorrelateWindowExcludesDistantEvents(t *testing.T) {
	c := New(Config{Window: 30 * time.Second}, zaptest.NewLogger(t))
	events := []*model.ExecutionEvent{
		autoEvent(0, model.LevelInfo, "test started"),
		autoEvent(5*time.Second, model.LevelError, "assert 500 == 200"),
		// 2 minutes after the last automation event, outside the window.
		appEvent(2*time.Minute+5*time.Second, model.LevelError, "payment-service", "returning 500"),
	}

	res := c.Correlate(events, []*model.FailureSignal{httpSignal("500")})
	assert.False(t, res.Matched)

	events = append(events,
		appEvent(20*time.Second, model.LevelError, "payment-service", "returning 500"))
	res = c.Correlate(events, []*model.FailureSignal{httpSignal("500")})
	assert.True(t, res.Matched)
}

func TestCorrelateIgnoresInfoLevelCandidates(t *testing.T) {
	c := New(Config{}, zaptest.NewLogger(t))
	events := []*model.ExecutionEvent{
		autoEvent(0, model.LevelError, "assert 500 == 200"),
		appEvent(time.Second, model.LevelInfo, "payment-service", "handled request with 500"),
	}

	res := c.Correlate(events, []*model.FailureSignal{httpSignal("500")})
	assert.False(t, res.Matched)
}

func TestCorrelateBasisPrecedence(t *testing.T) {
	c := New(Config{}, zaptest.NewLogger(t))
	auto := autoEvent(0, model.LevelError, "payment gateway endpoint connection refused")
	auto.ExceptionType = "ConnectException"
	events := []*model.ExecutionEvent{
		auto,
		// Earlier candidate only shares tokens.
		appEvent(1*time.Second, model.LevelWarn, "gateway",
			"payment gateway endpoint connection saturated"),
		// Later candidate shares the exception type, which outranks tokens.
		appEvent(4*time.Second, model.LevelError, "payment-service",
			"java.net.ConnectException: upstream down"),
	}

	res := c.Correlate(events, nil)
	require.True(t, res.Matched)
	assert.Equal(t, BasisExceptionType, res.Basis)
	assert.Equal(t, "payment-service", res.ServiceName)
}

func TestCorrelateDeterministic(t *testing.T) {
	c := New(Config{}, zaptest.NewLogger(t))
	events := []*model.ExecutionEvent{
		autoEvent(0, model.LevelError, "assert 500 == 200"),
		appEvent(time.Second, model.LevelError, "svc-a", "returning 500 for request"),
		appEvent(2*time.Second, model.LevelError, "svc-b", "returning 500 for request"),
	}
	sigs := []*model.FailureSignal{httpSignal("500")}

	first := c.Correlate(events, sigs)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Correlate(events, sigs))
	}
	assert.Equal(t, "svc-a", first.ServiceName)
}
