package model

// LogSource names one log to analyze, either by path or as inline content.
// When Raw is set, Path is used only for naming and warnings.
type LogSource struct {
	Path        string `json:"path"`
	Raw         []byte `json:"-"`
	Framework   string `json:"framework,omitempty"`    // automation: adapter override, empty = auto-detect
	ServiceName string `json:"service_name,omitempty"` // application: originating service
	TestName    string `json:"test_name,omitempty"`    // optional explicit test identity
}

// LogSourceCollection is the input contract for one analysis invocation.
// At least one automation source is required; application sources are
// optional and purely additive.
type LogSourceCollection struct {
	Automation  []LogSource `json:"automation"`
	Application []LogSource `json:"application,omitempty"`
}
