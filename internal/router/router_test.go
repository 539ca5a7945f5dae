package router

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/errors"
	"github.com/tareqmamari/execintel/internal/model"
)

const junitXMLSource = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="Smoke" tests="1" failures="0" time="0.5">
    <testcase classname="Smoke" name="testPing" time="0.421"/>
  </testsuite>
</testsuites>`

const appLogSource = `2024-01-15 10:23:45,123 ERROR [main] com.shop.ChargeService - charge rejected by gateway
2024-01-15 10:23:46,000 WARN [main] com.shop.ChargeService - retrying charge`

func newTestRouter() *Router {
	return New(nil, nil, zap.NewNop())
}

func TestCollectRequiresAutomationSource(t *testing.T) {
	r := newTestRouter()

	_, _, err := r.Collect(context.Background(), model.LogSourceCollection{})
	require.Error(t, err)
	se := errors.AsStructured(err)
	require.NotNil(t, se)
	assert.Equal(t, errors.CodeNoAutomationLogs, se.Code)

	// Application sources alone do not satisfy the requirement.
	_, _, err = r.Collect(context.Background(), model.LogSourceCollection{
		Application: []model.LogSource{{Path: "app.log", Raw: []byte(appLogSource)}},
	})
	require.Error(t, err)
}

func TestCollectInlineAutomation(t *testing.T) {
	r := newTestRouter()

	automation, application, err := r.Collect(context.Background(), model.LogSourceCollection{
		Automation: []model.LogSource{{Path: "junit.xml", Raw: []byte(junitXMLSource)}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, automation)
	assert.Empty(t, application)
	for _, ev := range automation {
		assert.Equal(t, model.SourceAutomation, ev.LogSourceType)
	}
	assert.Equal(t, "Smoke.testPing", automation[0].TestName)
}

func TestCollectHonorsExplicitFramework(t *testing.T) {
	r := newTestRouter()

	// A bare summary row carries no pytest session banner, so only the
	// explicit name routes it to the right adapter.
	raw := "FAILED tests/test_login.py::test_submit - AssertionError: assert 500 == 200\n"
	automation, _, err := r.Collect(context.Background(), model.LogSourceCollection{
		Automation: []model.LogSource{{Path: "run.txt", Raw: []byte(raw), Framework: "PyTest"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, automation)
	assert.Equal(t, "pytest", automation[0].Source)
	assert.Equal(t, "test_submit", automation[0].TestName)
}

func TestCollectUnknownFrameworkAutoDetects(t *testing.T) {
	r := newTestRouter()

	automation, _, err := r.Collect(context.Background(), model.LogSourceCollection{
		Automation: []model.LogSource{{Path: "junit.xml", Raw: []byte(junitXMLSource), Framework: "mstest"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, automation)
	assert.Equal(t, "junit", automation[0].Source)
}

func TestCollectUnreadableAutomationContinues(t *testing.T) {
	r := newTestRouter()

	automation, _, err := r.Collect(context.Background(), model.LogSourceCollection{
		Automation: []model.LogSource{
			{Path: filepath.Join(t.TempDir(), "does-not-exist.log")},
			{Path: "junit.xml", Raw: []byte(junitXMLSource)},
		},
	})
	require.NoError(t, err)
	assert.Len(t, automation, 1)

	// Even with every automation source unreadable the run proceeds; the
	// analyzer turns zero events into an UNKNOWN verdict.
	automation, _, err = r.Collect(context.Background(), model.LogSourceCollection{
		Automation: []model.LogSource{{Path: filepath.Join(t.TempDir(), "gone.log")}},
	})
	require.NoError(t, err)
	assert.Empty(t, automation)
}

func TestCollectMissingApplicationSkipped(t *testing.T) {
	r := newTestRouter()

	automation, application, err := r.Collect(context.Background(), model.LogSourceCollection{
		Automation:  []model.LogSource{{Path: "junit.xml", Raw: []byte(junitXMLSource)}},
		Application: []model.LogSource{{Path: filepath.Join(t.TempDir(), "missing-app.log")}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, automation)
	assert.Empty(t, application)
}

func TestCollectApplicationEvents(t *testing.T) {
	r := newTestRouter()

	_, application, err := r.Collect(context.Background(), model.LogSourceCollection{
		Automation:  []model.LogSource{{Path: "junit.xml", Raw: []byte(junitXMLSource)}},
		Application: []model.LogSource{{Path: "app.log", Raw: []byte(appLogSource), ServiceName: "charge-svc"}},
	})
	require.NoError(t, err)
	require.Len(t, application, 2)
	for _, ev := range application {
		assert.Equal(t, model.SourceApplication, ev.LogSourceType)
		assert.Equal(t, "charge-svc", ev.ServiceName)
	}
	assert.Equal(t, model.LevelError, application[0].Level)
}

func TestCollectMergesByTimestamp(t *testing.T) {
	r := newTestRouter()

	first := "10:00:01 alpha\n10:00:03 gamma\n"
	second := "10:00:02 beta\n"
	automation, _, err := r.Collect(context.Background(), model.LogSourceCollection{
		Automation: []model.LogSource{
			{Path: "a.log", Raw: []byte(first)},
			{Path: "b.log", Raw: []byte(second)},
		},
	})
	require.NoError(t, err)
	require.Len(t, automation, 3)
	assert.Equal(t, "alpha", automation[0].Message)
	assert.Equal(t, "beta", automation[1].Message)
	assert.Equal(t, "gamma", automation[2].Message)
	assert.True(t, automation[0].Timestamp.Before(automation[1].Timestamp))
}

func TestCollectKeepsSourceOrderForEqualTimestamps(t *testing.T) {
	r := newTestRouter()

	automation, _, err := r.Collect(context.Background(), model.LogSourceCollection{
		Automation: []model.LogSource{
			{Path: "a.log", Raw: []byte("10:00:01 from first source\n")},
			{Path: "b.log", Raw: []byte("10:00:01 from second source\n")},
		},
	})
	require.NoError(t, err)
	require.Len(t, automation, 2)
	assert.Equal(t, "from first source", automation[0].Message)
	assert.Equal(t, "from second source", automation[1].Message)
	assert.Equal(t, automation[0].Timestamp, automation[1].Timestamp)
}

func TestCollectAppliesExplicitTestName(t *testing.T) {
	r := newTestRouter()

	automation, _, err := r.Collect(context.Background(), model.LogSourceCollection{
		Automation: []model.LogSource{{
			Path:     "checkout.log",
			Raw:      []byte("10:00:01 starting checkout\n10:00:02 ERROR payment declined\n"),
			TestName: "checkout smoke",
		}},
	})
	require.NoError(t, err)
	require.Len(t, automation, 2)
	for _, ev := range automation {
		assert.Equal(t, "checkout smoke", ev.TestName)
	}
}

func TestCollectReadsFromDisk(t *testing.T) {
	r := newTestRouter()

	dir := t.TempDir()
	path := filepath.Join(dir, "results.xml")
	require.NoError(t, os.WriteFile(path, []byte(junitXMLSource), 0o644))

	automation, _, err := r.Collect(context.Background(), model.LogSourceCollection{
		Automation: []model.LogSource{{Path: path}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, automation)
	assert.Equal(t, "junit", automation[0].Source)
}

func TestCollectHonorsCancelledContext(t *testing.T) {
	r := newTestRouter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := r.Collect(ctx, model.LogSourceCollection{
		Automation: []model.LogSource{{Path: "junit.xml", Raw: []byte(junitXMLSource)}},
	})
	require.ErrorIs(t, err, context.Canceled)
}
