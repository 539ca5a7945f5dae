package applog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tareqmamari/execintel/internal/model"
)

const log4jLog = `2024-01-15 10:23:45,123 INFO [main] com.shop.payments.Bootstrap - starting payment service
2024-01-15 10:23:47,456 ERROR [http-nio-8080-exec-2] com.shop.payments.ChargeService - charge rejected by gateway
java.net.SocketTimeoutException: Read timed out
    at java.base/java.net.SocketInputStream.socketRead0(Native Method)
    at com.shop.payments.GatewayClient.post(GatewayClient.java:88)
2024-01-15 10:23:48,000 WARN [http-nio-8080-exec-2] com.shop.payments.ChargeService - retrying charge`

const logbackLog = `10:23:45.123 [main] DEBUG c.s.payments.GatewayClient - posting charge to https://pay.example.com
10:23:45.789 [main] ERROR c.s.payments.ChargeService - gateway unreachable`

func TestLog4jParse(t *testing.T) {
	events := log4jParser{}.Parse([]byte(log4jLog), "payments")
	require.Len(t, events, 3)

	assert.Equal(t, time.Date(2024, 1, 15, 10, 23, 45, 123000000, time.UTC), events[0].Timestamp)
	assert.Equal(t, model.LevelInfo, events[0].Level)
	assert.Equal(t, "starting payment service", events[0].Message)
	assert.Equal(t, "com.shop.payments.Bootstrap", events[0].Metadata[MetaLogger])

	assert.Equal(t, model.LevelError, events[1].Level)
	assert.Equal(t, "charge rejected by gateway", events[1].Message)
	assert.Equal(t, "java.net.SocketTimeoutException", events[1].ExceptionType)
	assert.Contains(t, events[1].Stacktrace, "GatewayClient.java:88")

	assert.Equal(t, model.LevelWarn, events[2].Level)
	assert.Equal(t, "retrying charge", events[2].Message)
}

func TestLogbackClockLayout(t *testing.T) {
	events := log4jParser{}.Parse([]byte(logbackLog), "payments")
	require.Len(t, events, 2)

	// Bare clock times anchor to the synthetic epoch's date.
	assert.Equal(t, time.Date(2000, 1, 1, 10, 23, 45, 123000000, time.UTC), events[0].Timestamp)
	assert.Equal(t, model.LevelDebug, events[0].Level)
	assert.Equal(t, "c.s.payments.GatewayClient", events[0].Metadata[MetaLogger])
	assert.Equal(t, model.LevelError, events[1].Level)
	assert.Equal(t, "gateway unreachable", events[1].Message)
}

func TestLog4jCanHandle(t *testing.T) {
	assert.True(t, log4jParser{}.CanHandle([]byte(log4jLog)))
	assert.True(t, log4jParser{}.CanHandle([]byte(logbackLog)))
	assert.False(t, log4jParser{}.CanHandle([]byte(pythonLog)))
	assert.False(t, log4jParser{}.CanHandle([]byte(genericAppLog)))
}
