package model

// GroupMember records one test's membership in a correlation group together
// with how strongly it matched the group.
type GroupMember struct {
	TestName   string  `json:"test_name"`
	Similarity float64 `json:"similarity"`
}

// CorrelationGroup is a set of tests whose failures look like one incident.
// Groups are run-scoped: computed per batch and exported, never persisted
// as primary data.
type CorrelationGroup struct {
	GroupID        string        `json:"group_id"`
	Pattern        string        `json:"pattern"`
	AffectedTests  int           `json:"affected_tests"`
	FailureType    FailureType   `json:"failure_type"`
	SignalType     SignalType    `json:"signal_type"`
	Confidence     float64       `json:"confidence"`
	RootCause      string        `json:"root_cause"`
	Recommendation string        `json:"recommendation"`
	Strategy       string        `json:"strategy"`
	Members        []GroupMember `json:"members"`
}
