package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tareqmamari/execintel/internal/model"
)

const restAssuredLog = `Request method: POST
Request URI:    https://api.example.com/v1/login
Proxy:          <none>
Body:
{
    "username": "demo"
}
HTTP/1.1 500 Internal Server Error
Content-Type: application/json

java.lang.AssertionError: 1 expectation failed.
Expected status code <200> but was <500>.
    at io.restassured.internal.ValidatableResponseImpl.statusCode(ValidatableResponseImpl.java:120)`

func TestRestAssuredParse(t *testing.T) {
	a := newRestAssuredAdapter()
	events := a.Parse([]byte(restAssuredLog))
	require.Len(t, events, 3)

	request := events[0]
	assert.Equal(t, "POST https://api.example.com/v1/login", request.Message)
	assert.Equal(t, model.LevelInfo, request.Level)
	assert.Equal(t, "POST", request.Metadata[MetaMethod])
	assert.Equal(t, "https://api.example.com/v1/login", request.Metadata[MetaURL])

	response := events[1]
	assert.Equal(t, model.LevelError, response.Level)
	assert.Equal(t, "500", response.Metadata[MetaStatusCode])
	assert.Equal(t, "POST", response.Metadata[MetaMethod])

	failure := events[2]
	assert.Equal(t, "java.lang.AssertionError", failure.ExceptionType)
	assert.Equal(t, "java.lang.AssertionError: 1 expectation failed.\nExpected status code <200> but was <500>.", failure.Message)
	assert.Equal(t, "https://api.example.com/v1/login", failure.Metadata[MetaURL])
	assert.Contains(t, failure.Stacktrace, "ValidatableResponseImpl.java:120")
}

func TestRestAssuredParseSuccessfulResponse(t *testing.T) {
	raw := `Request method: GET
Request URI:    https://api.example.com/v1/health
HTTP/1.1 200 OK`
	a := newRestAssuredAdapter()
	events := a.Parse([]byte(raw))
	require.Len(t, events, 2)
	assert.Equal(t, model.LevelInfo, events[1].Level)
	assert.Equal(t, "200", events[1].Metadata[MetaStatusCode])
}

func TestRestAssuredCanHandle(t *testing.T) {
	a := newRestAssuredAdapter()
	assert.True(t, a.CanHandle([]byte(restAssuredLog)))
	assert.True(t, a.CanHandle([]byte("at io.restassured.RestAssured.given(RestAssured.java:10)")))
	assert.False(t, a.CanHandle([]byte("Request method only, no URI")))
}
