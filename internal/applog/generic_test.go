package applog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tareqmamari/execintel/internal/model"
)

const genericAppLog = `[2024-01-15T10:00:00Z] WARN high memory usage: 91%
service listening on :8080
2024-01-15 10:00:02 ERROR upstream timeout after 5s`

func TestGenericAppParse(t *testing.T) {
	events := genericParser{}.Parse([]byte(genericAppLog), "edge-proxy")
	require.Len(t, events, 3)

	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), events[0].Timestamp)
	assert.Equal(t, model.LevelWarn, events[0].Level)
	assert.Equal(t, "high memory usage: 91%", events[0].Message)
	assert.Equal(t, "edge-proxy", events[0].ServiceName)

	// Unstamped lines inherit the previous timestamp plus a millisecond.
	assert.Equal(t, events[0].Timestamp.Add(time.Millisecond), events[1].Timestamp)
	assert.Equal(t, model.LevelInfo, events[1].Level)
	assert.Equal(t, "service listening on :8080", events[1].Message)

	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 2, 0, time.UTC), events[2].Timestamp)
	assert.Equal(t, model.LevelError, events[2].Level)
	assert.Equal(t, "upstream timeout after 5s", events[2].Message)
}

func TestGenericAppParseNodeStack(t *testing.T) {
	raw := `request handler crashed
TypeError: Cannot read properties of undefined (reading 'charge')
    at processOrder (/app/server.js:42:13)
    at Layer.handle [as handle_request] (/app/node_modules/express/lib/router/layer.js:95:5)`
	events := genericParser{}.Parse([]byte(raw), "shop-web")
	require.Len(t, events, 1)
	assert.Equal(t, "request handler crashed", events[0].Message)
	assert.Equal(t, "TypeError", events[0].ExceptionType)
	assert.Contains(t, events[0].Stacktrace, "server.js:42:13")
	assert.Contains(t, events[0].Stacktrace, "layer.js:95:5")
}

func TestGenericAppParsePythonTraceback(t *testing.T) {
	raw := `worker tick
Traceback (most recent call last):
  File "/app/jobs.py", line 7, in run
    process()
KeyError: 'charge_id'`
	events := genericParser{}.Parse([]byte(raw), "jobs")
	require.Len(t, events, 1)
	assert.Equal(t, "worker tick", events[0].Message)
	assert.Equal(t, "KeyError", events[0].ExceptionType)
	assert.Contains(t, events[0].Stacktrace, `File "/app/jobs.py", line 7, in run`)
}

func TestGenericAppCanHandleIsAlwaysTrue(t *testing.T) {
	assert.True(t, genericParser{}.CanHandle(nil))
	assert.True(t, genericParser{}.CanHandle([]byte("anything")))
}
