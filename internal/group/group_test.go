package group

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tareqmamari/execintel/internal/model"
)

var runStart = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

type resultSpec struct {
	name    string
	ft      model.FailureType
	st      model.SignalType
	conf    float64
	msg     string
	stack   string
	ts      time.Time
	passing bool
}

func makeResult(spec resultSpec) *model.AnalysisResult {
	res := &model.AnalysisResult{
		TestName:  spec.name,
		Framework: "pytest",
		Status:    model.StatusFail,
		Timestamp: spec.ts,
	}
	if spec.passing {
		res.Status = model.StatusPass
		return res
	}
	res.Signals = []*model.FailureSignal{{
		SignalType: spec.st,
		Message:    spec.msg,
		Confidence: 0.85,
		Stacktrace: spec.stack,
	}}
	res.Classification = &model.FailureClassification{
		FailureType: spec.ft,
		Confidence:  spec.conf,
		Reason:      "matched",
	}
	return res
}

func newGrouper(t *testing.T) *Grouper {
	return New(Config{}, zaptest.NewLogger(t))
}

func TestGroupDatabaseIncident(t *testing.T) {
	// One database outage takes down fifteen tests; the report should show
	// one incident, not fifteen lines.
	var results []*model.AnalysisResult
	for i := 0; i < 15; i++ {
		results = append(results, makeResult(resultSpec{
			name: fmt.Sprintf("test_checkout_%02d", i),
			ft:   model.EnvironmentIssue,
			st:   model.SignalDatabase,
			conf: 0.85,
			msg:  fmt.Sprintf("SQLException: connection pool exhausted, unable to acquire connection %d from pool", i),
			ts:   runStart.Add(time.Duration(i) * 10 * time.Second),
		}))
	}

	groups := newGrouper(t).Group(results)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, 15, g.AffectedTests)
	assert.Len(t, g.Members, 15)
	assert.Equal(t, model.EnvironmentIssue, g.FailureType)
	assert.Equal(t, model.SignalDatabase, g.SignalType)
	assert.InDelta(t, 0.85, g.Confidence, 1e-9)
	assert.Contains(t, g.RootCause, "pool")
	assert.NotEmpty(t, g.Recommendation)
	assert.Regexp(t, regexp.MustCompile(`^grp-[0-9a-f]{12}$`), g.GroupID)
}

func TestGroupMessageSimilarity(t *testing.T) {
	results := []*model.AnalysisResult{
		makeResult(resultSpec{
			name: "test_pay_card",
			ft:   model.EnvironmentIssue,
			st:   model.SignalConnectionError,
			conf: 0.9,
			msg:  "connection refused to payment service on port 8080",
		}),
		makeResult(resultSpec{
			name: "test_pay_wallet",
			ft:   model.EnvironmentIssue,
			st:   model.SignalConnectionError,
			conf: 0.9,
			msg:  "connection refused to payment service on port 9090",
		}),
		// Unrelated failure; must stay out of the group and not be emitted
		// as a singleton.
		makeResult(resultSpec{
			name: "test_login_banner",
			ft:   model.AutomationDefect,
			st:   model.SignalLocator,
			conf: 0.88,
			msg:  "unable to locate element #welcome-banner",
		}),
	}

	groups := newGrouper(t).Group(results)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, 2, g.AffectedTests)
	require.Len(t, g.Members, 2)
	assert.Equal(t, "test_pay_card", g.Members[0].TestName)
	assert.Equal(t, "test_pay_wallet", g.Members[1].TestName)
	for _, m := range g.Members {
		assert.GreaterOrEqual(t, m.Similarity, 0.8)
	}
}

func TestGroupCategoryStrategy(t *testing.T) {
	// Messages too different for cosine grouping, but both are database
	// failures classified as environment issues.
	results := []*model.AnalysisResult{
		makeResult(resultSpec{
			name: "test_orders_list",
			ft:   model.EnvironmentIssue,
			st:   model.SignalDatabase,
			conf: 0.8,
			msg:  "query timeout on orders table",
		}),
		makeResult(resultSpec{
			name: "test_inventory_update",
			ft:   model.EnvironmentIssue,
			st:   model.SignalDatabase,
			conf: 0.8,
			msg:  "deadlock detected while updating inventory rows",
		}),
	}

	groups := newGrouper(t).Group(results)
	require.Len(t, groups, 1)
	assert.Equal(t, StrategyCategory, groups[0].Strategy)
	assert.Equal(t, model.SignalDatabase, groups[0].SignalType)
}

func TestGroupTemporalChain(t *testing.T) {
	// a and b fail within the window; c fails twenty minutes later and has
	// lower confidence, so the tight chain outranks the category bucket.
	results := []*model.AnalysisResult{
		makeResult(resultSpec{
			name: "test_a", ft: model.EnvironmentIssue, st: model.SignalTimeout,
			conf: 0.9, msg: "gateway health probe stalled", ts: runStart,
		}),
		makeResult(resultSpec{
			name: "test_b", ft: model.EnvironmentIssue, st: model.SignalTimeout,
			conf: 0.9, msg: "checkout request exceeded deadline budget", ts: runStart.Add(time.Minute),
		}),
		makeResult(resultSpec{
			name: "test_c", ft: model.EnvironmentIssue, st: model.SignalTimeout,
			conf: 0.5, msg: "search suggestion lookup never responded", ts: runStart.Add(21 * time.Minute),
		}),
	}

	groups := newGrouper(t).Group(results)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, StrategyTemporal, g.Strategy)
	assert.Equal(t, 2, g.AffectedTests)
	assert.Equal(t, "test_a", g.Members[0].TestName)
	assert.Equal(t, "test_b", g.Members[1].TestName)
}

func TestGroupStackSignature(t *testing.T) {
	stack := `Traceback (most recent call last):
  File "tests/test_kits.py", line 12, in test_kits
    helpers.save()
  File "shop/helpers/storage.py", line 77, in save
    raise RuntimeError(reason)`

	results := []*model.AnalysisResult{
		makeResult(resultSpec{
			name: "test_kits", ft: model.ProductDefect, st: model.SignalAssertion,
			conf: 0.8, msg: "expected kit count 5 but was 0", stack: stack,
		}),
		makeResult(resultSpec{
			name: "test_bundles", ft: model.UnknownFailure, st: model.SignalOther,
			conf: 0.4, msg: "bundle refresh aborted midway", stack: stack,
		}),
	}

	groups := newGrouper(t).Group(results)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, StrategyStack, g.Strategy)
	assert.Contains(t, g.Pattern, "storage.py:save")
	assert.Equal(t, 2, g.AffectedTests)
}

func TestGroupAssignmentPrefersHigherConfidence(t *testing.T) {
	// a and b form a tight message group at 0.9; c only shares the category
	// and would drag the average down. c's leftover category group is a
	// singleton and is dropped.
	results := []*model.AnalysisResult{
		makeResult(resultSpec{
			name: "test_a", ft: model.EnvironmentIssue, st: model.SignalConnectionError,
			conf: 0.9, msg: "connection refused to cart service on port 8080",
		}),
		makeResult(resultSpec{
			name: "test_b", ft: model.EnvironmentIssue, st: model.SignalConnectionError,
			conf: 0.9, msg: "connection refused to cart service on port 8081",
		}),
		makeResult(resultSpec{
			name: "test_c", ft: model.EnvironmentIssue, st: model.SignalConnectionError,
			conf: 0.3, msg: "socket write aborted while streaming export",
		}),
	}

	groups := newGrouper(t).Group(results)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, 2, g.AffectedTests)
	names := []string{g.Members[0].TestName, g.Members[1].TestName}
	assert.Equal(t, []string{"test_a", "test_b"}, names)
}

func TestGroupNothingShared(t *testing.T) {
	results := []*model.AnalysisResult{
		makeResult(resultSpec{
			name: "test_a", ft: model.ProductDefect, st: model.SignalAssertion,
			conf: 0.9, msg: "expected coupon discount applied",
		}),
		makeResult(resultSpec{
			name: "test_b", ft: model.AutomationDefect, st: model.SignalLocator,
			conf: 0.9, msg: "stale element reference on submit",
		}),
	}
	assert.Nil(t, newGrouper(t).Group(results))
}

func TestGroupIgnoresPassing(t *testing.T) {
	results := []*model.AnalysisResult{
		makeResult(resultSpec{name: "test_ok_1", passing: true}),
		makeResult(resultSpec{name: "test_ok_2", passing: true}),
		makeResult(resultSpec{
			name: "test_only_failure", ft: model.ProductDefect,
			st: model.SignalAssertion, conf: 0.9, msg: "expected 200 got 500",
		}),
	}
	assert.Nil(t, newGrouper(t).Group(results))
}

func TestGroupDeterministic(t *testing.T) {
	build := func(order []int) []*model.AnalysisResult {
		specs := []resultSpec{
			{name: "test_a", ft: model.EnvironmentIssue, st: model.SignalDatabase,
				conf: 0.85, msg: "connection pool exhausted acquiring connection 1", ts: runStart},
			{name: "test_b", ft: model.EnvironmentIssue, st: model.SignalDatabase,
				conf: 0.85, msg: "connection pool exhausted acquiring connection 2", ts: runStart.Add(time.Second)},
			{name: "test_c", ft: model.AutomationDefect, st: model.SignalLocator,
				conf: 0.9, msg: "no such element: #pay-now", ts: runStart.Add(2 * time.Second)},
			{name: "test_d", ft: model.AutomationDefect, st: model.SignalLocator,
				conf: 0.9, msg: "no such element: #pay-later", ts: runStart.Add(3 * time.Second)},
		}
		out := make([]*model.AnalysisResult, 0, len(specs))
		for _, i := range order {
			out = append(out, makeResult(specs[i]))
		}
		return out
	}

	g := newGrouper(t)
	first := g.Group(build([]int{0, 1, 2, 3}))
	require.Len(t, first, 2)
	// Input order must not matter.
	assert.Equal(t, first, g.Group(build([]int{3, 1, 0, 2})))
	assert.Equal(t, first, g.Group(build([]int{2, 3, 1, 0})))
}
