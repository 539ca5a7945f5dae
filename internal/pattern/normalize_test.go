package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tareqmamari/execintel/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{
			name:    "numbers and timestamps",
			message: "Timeout after 30000ms waiting for element #submit at 2024-01-15 10:23:45",
			want:    "timeout after <NUM>ms waiting for element #submit at <TS>",
		},
		{
			name:    "uuid",
			message: "user 550e8400-e29b-41d4-a716-446655440000 not found",
			want:    "user <UUID> not found",
		},
		{
			name:    "url and status code",
			message: "GET https://api.example.com/v1/users returned 503",
			want:    "get <URL> returned <NUM>",
		},
		{
			name:    "absolute path with line number",
			message: "/opt/app/tests/test_login.py:42: in test_login",
			want:    "<PATH>:<NUM>: in test_login",
		},
		{
			name:    "relative path",
			message: "failure in tests/test_login.py",
			want:    "failure in <PATH>",
		},
		{
			name:    "memory address",
			message: "object at 0x7f3a2b1c9d80 is dead",
			want:    "object at <ADDR> is dead",
		},
		{
			name:    "bare hex digest",
			message: "commit deadbeefcafe1234 failed",
			want:    "commit <NUM> failed",
		},
		{
			name:    "quoted literals",
			message: `Expected "OK" but got "Internal Server Error"`,
			want:    "expected <STR> but got <STR>",
		},
		{
			name:    "selenium locator json",
			message: `NoSuchElementException: Unable to locate element: {"method":"css selector","selector":"#login"}`,
			want:    "nosuchelementexception: unable to locate element: {<STR>:<STR>,<STR>:<STR>}",
		},
		{
			name:    "pytest assertion prefix",
			message: "E       AssertionError: assert 500 == 200",
			want:    "assertionerror: assert <NUM> == <NUM>",
		},
		{
			name:    "bracketed level prefix and multiline",
			message: "[ERROR] Connection refused\n    at line 2",
			want:    "connection refused at line <NUM>",
		},
		{
			name:    "robot framework row prefix",
			message: "| FAIL | Element not visible",
			want:    "element not visible",
		},
		{
			name:    "unicode passes through",
			message: "Überprüfung fehlgeschlagen",
			want:    "überprüfung fehlgeschlagen",
		},
		{
			name:    "whitespace collapsed",
			message: "  too    many\t spaces  ",
			want:    "too many spaces",
		},
		{
			name:    "empty",
			message: "",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.message)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(tt.message), "normalization must be deterministic")
		})
	}
}

func TestNormalizeVolatilePartsCollapse(t *testing.T) {
	// Messages that differ only in volatile tokens normalize identically.
	pairs := [][2]string{
		{
			"Timeout after 30000ms at 2024-01-15 10:23:45",
			"Timeout after 45000ms at 2024-02-20 18:01:02",
		},
		{
			"ECONNREFUSED 127.0.0.1:4000",
			"ECONNREFUSED 10.0.0.5:4000",
		},
		{
			"session 550e8400-e29b-41d4-a716-446655440000 expired",
			"session 123e4567-e89b-12d3-a456-426614174000 expired",
		},
	}

	for _, pair := range pairs {
		assert.Equal(t, Normalize(pair[0]), Normalize(pair[1]),
			"expected %q and %q to normalize identically", pair[0], pair[1])
	}
}

func TestHash(t *testing.T) {
	h := Hash(model.SignalTimeout, "timeout after <NUM>ms")

	require.Len(t, h, 16)
	assert.Regexp(t, "^[0-9a-f]{16}$", h)
	assert.Equal(t, h, Hash(model.SignalTimeout, "timeout after <NUM>ms"))
	assert.NotEqual(t, h, Hash(model.SignalAssertion, "timeout after <NUM>ms"),
		"signal type is part of the hash input")
	assert.NotEqual(t, h, Hash(model.SignalTimeout, "timeout after <NUM>s"))
}

func TestHashMessage(t *testing.T) {
	hash, normalized := HashMessage(model.SignalLocator, "Unable to locate element '#login'")

	assert.Equal(t, "unable to locate element <STR>", normalized)
	assert.Equal(t, Hash(model.SignalLocator, normalized), hash)

	// Two raw messages that differ only in volatile tokens share a hash.
	h2, _ := HashMessage(model.SignalLocator, "Unable to locate element '#signup'")
	assert.Equal(t, hash, h2)
}

func TestBoost(t *testing.T) {
	assert.Zero(t, Boost(0, 20))
	assert.Zero(t, Boost(-3, 20))
	assert.Zero(t, Boost(5, 0), "invalid cap disables boosting")

	assert.InDelta(t, 0.0342, Boost(1, 20), 0.0005)
	assert.InDelta(t, 0.15, Boost(20, 20), 1e-9, "boost saturates at the cap")
	assert.Equal(t, 0.15, Boost(100, 20), "counts past the cap stay clamped")

	assert.Less(t, Boost(1, 20), Boost(5, 20))
	assert.Less(t, Boost(5, 20), Boost(10, 20))
	assert.Less(t, Boost(10, 20), Boost(20, 20))
}
