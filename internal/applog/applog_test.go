package applog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
)

func TestFamilyDetectionOrder(t *testing.T) {
	fam := NewFamily(zap.NewNop())
	assert.Equal(t, []string{"json", "dotnet", "spring", "log4j", "python", "generic"}, fam.Names())
}

func TestFamilyDetect(t *testing.T) {
	fam := NewFamily(zap.NewNop())

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"json lines", jsonLog, FormatJSON},
		{"json after banner", jsonBannerLog, FormatJSON},
		{"nlog pipes", nlogLog, FormatDotNet},
		{"aspnet console", aspnetLog, FormatDotNet},
		{"spring boot console", springLog, FormatSpring},
		{"log4j", log4jLog, FormatLog4j},
		{"logback clock layout", logbackLog, FormatLog4j},
		{"python logging", pythonLog, FormatPython},
		{"python short format", pyShortLog, FormatPython},
		{"free text", genericAppLog, FormatGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fam.Detect([]byte(tt.raw)).Name())
		})
	}
}

func TestFamilyDetectEmptyInput(t *testing.T) {
	fam := NewFamily(zap.NewNop())
	assert.Equal(t, FormatGeneric, fam.Detect(nil).Name())
}

func TestFamilyParseTagsEvents(t *testing.T) {
	fam := NewFamily(zap.NewNop())
	events := fam.Parse([]byte(log4jLog), "payments-svc")
	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Equal(t, model.SourceApplication, ev.LogSourceType)
		assert.Equal(t, "payments-svc", ev.ServiceName)
	}
}

func TestParsersTolerateGarbage(t *testing.T) {
	fam := NewFamily(zap.NewNop())
	inputs := [][]byte{
		nil,
		[]byte("\x00\x01\xff\xfe"),
		[]byte("{\"unclosed\": "),
		[]byte("a single line without any structure"),
	}
	for _, p := range fam.ordered {
		for _, raw := range inputs {
			assert.NotPanics(t, func() { p.Parse(raw, "svc") }, "parser %s", p.Name())
			assert.NotPanics(t, func() { p.CanHandle(raw) }, "parser %s", p.Name())
		}
	}
}

func TestAttachTraceWithoutPrecedingRecord(t *testing.T) {
	events, ok := attachTrace(nil, "java.net.ConnectException: Connection refused", FormatGeneric, "svc")
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, model.LevelError, events[0].Level)
	assert.Equal(t, "java.net.ConnectException", events[0].ExceptionType)
}
