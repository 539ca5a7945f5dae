package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryDetectionOrder(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	assert.Equal(t, []string{
		"testng", "junit", "nunit", "robot", "cypress", "playwright",
		"pytest", "behave", "specflow", "cucumber", "restassured",
		"selenium", "generic",
	}, reg.Names())
}

func TestRegistryDetect(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"junit xml", junitXML, FrameworkJUnit},
		{"junit xml from a testng run", junitTestNGXML, FrameworkJUnit},
		{"testng xml", testngXML, FrameworkTestNG},
		{"testng console", testngConsole, FrameworkTestNG},
		{"nunit xml", nunitXML, FrameworkNUnit},
		{"robot console", robotLog, FrameworkRobot},
		{"cypress run", cypressLog, FrameworkCypress},
		{"playwright list reporter", playwrightLog, FrameworkPlaywright},
		{"pytest verbose", pytestLog, FrameworkPytest},
		{"behave pretty", behaveLog, FrameworkBehave},
		{"specflow console", specflowLog, FrameworkSpecFlow},
		{"cucumber jvm", cucumberLog, FrameworkCucumber},
		{"rest assured dump", restAssuredLog, FrameworkRestAssured},
		{"selenium python", seleniumLog, FrameworkSelenium},
		{"plain application log", genericLog, FrameworkGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.Detect([]byte(tt.raw)).Name())
		})
	}
}

func TestRegistryDetectEmptyInput(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	assert.Equal(t, FrameworkGeneric, reg.Detect(nil).Name())
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"pytest", FrameworkPytest, true},
		{"PyTest", FrameworkPytest, true},
		{"py.test", FrameworkPytest, true},
		{"Robot Framework", FrameworkRobot, true},
		{"robot-framework", FrameworkRobot, true},
		{"REST-Assured", FrameworkRestAssured, true},
		{"rest", FrameworkRestAssured, true},
		{"spec_flow", FrameworkSpecFlow, true},
		{" junit ", FrameworkJUnit, true},
		{"mstest", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := reg.Get(tt.name)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, a.Name())
			}
		})
	}
}

func TestParseIsDeterministic(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	for _, raw := range []string{junitSuiteXML, pytestLog, robotLog, genericLog} {
		a := reg.Detect([]byte(raw))
		first := a.Parse([]byte(raw))
		second := a.Parse([]byte(raw))
		assert.Equal(t, first, second, "adapter %s", a.Name())
	}
}

func TestAdaptersTolerateGarbage(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	inputs := [][]byte{
		nil,
		[]byte("\x00\x01\xff\xfe"),
		[]byte("<testsuites><unclosed"),
		[]byte("a single line without any structure"),
	}
	for _, name := range reg.Names() {
		a, ok := reg.Get(name)
		require.True(t, ok)
		for _, raw := range inputs {
			assert.NotPanics(t, func() { a.Parse(raw) }, "adapter %s", name)
			assert.NotPanics(t, func() { a.CanHandle(raw) }, "adapter %s", name)
		}
	}
}

func TestExceptionFromText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"java.lang.AssertionError: expected 200", "java.lang.AssertionError"},
		{"TimeoutError: waiting for selector", "TimeoutError"},
		{"selenium.common.exceptions.NoSuchElementException: Message: none", "selenium.common.exceptions.NoSuchElementException"},
		{"plain text without a type", ""},
		{"Total tests run: 2, Failures: 1", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exceptionFromText(tt.in), "input %q", tt.in)
	}
}
