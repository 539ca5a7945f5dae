package extract

import (
	"regexp"

	"github.com/tareqmamari/execintel/internal/model"
)

// pattern is one named expression an extractor scans for. The id becomes
// part of the signal's patterns list (for example "timeout/timed-out"),
// which is what rules and reports cite.
type pattern struct {
	id string
	re *regexp.Regexp
}

func pat(id, expr string) pattern {
	return pattern{id: id, re: regexp.MustCompile(expr)}
}

func newTimeoutExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "timeout",
		signalType: model.SignalTimeout,
		confidence: confTimeout,
		patterns: []pattern{
			pat("timed-out", `(?i)\btimed?[ _-]?out\b`),
			pat("timeout-exception", `(?i)timeout\s*(?:error|exception|expired)`),
			pat("webdriver-wait", `(?i)webdriverwait|wait\.until`),
			pat("deadline-exceeded", `(?i)deadline exceeded|context deadline`),
		},
	}
}

func newConnectionExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "connection",
		signalType: model.SignalConnectionError,
		confidence: confConnection,
		patterns: []pattern{
			pat("connection-refused", `(?i)connection\s+refused`),
			pat("econnrefused", `(?i)\beconnrefused\b`),
			pat("connection-reset", `(?i)connection\s+reset|\beconnreset\b`),
			pat("connection-aborted", `(?i)connection\s+aborted|software caused connection abort`),
			pat("broken-pipe", `(?i)broken\s+pipe|\bepipe\b`),
			pat("socket-failure", `(?i)socket\s+hang\s*up|socket\s+(?:closed|error)`),
			pat("connect-failed", `(?i)(?:failed|unable)\s+to\s+connect|could\s+not\s+connect\b`),
			pat("max-retries", `(?i)max retries exceeded with url`),
		},
	}
}

func newDNSExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "dns",
		signalType: model.SignalDNSError,
		confidence: confDNS,
		patterns: []pattern{
			pat("getaddrinfo", `(?i)\bgetaddrinfo\b`),
			pat("name-resolution", `(?i)name resolution|could not resolve (?:host|hostname)|failed to resolve\b`),
			pat("unknown-host", `(?i)unknown host|unknownhostexception|name or service not known|nodename nor servname`),
			pat("lookup-failed", `(?i)\benotfound\b|dns lookup failed|no such host`),
		},
	}
}

func newInfraExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "infra",
		signalType: model.SignalInfra,
		confidence: confInfra,
		patterns: []pattern{
			pat("out-of-memory", `(?i)out of memory|outofmemoryerror|\boomkilled\b|cannot allocate memory`),
			pat("disk-full", `(?i)no space left on device|disk (?:is )?full|\benospc\b`),
			pat("permission-denied", `(?i)permission denied|access is denied|\beacces\b`),
			pat("too-many-open-files", `(?i)too many open files|\bemfile\b`),
			pat("resource-exhausted", `(?i)resource exhausted|quota exceeded|insufficient (?:memory|cpu|resources)`),
			pat("read-only-fs", `(?i)read-only file system`),
			pat("host-unreachable", `(?i)host is down|no route to host|network is unreachable`),
		},
	}
}

func newDatabaseExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "database",
		signalType: model.SignalDatabase,
		confidence: confDatabase,
		patterns: []pattern{
			pat("sql-exception", `(?i)sqlexception|sqlstate|sqlalchemy|psycopg2|\bjdbc\b`),
			pat("db-connection", `(?i)(?:database|db)\s+connection|connection\s+pool`),
			pat("deadlock", `(?i)\bdeadlock\b`),
			pat("query-failed", `(?i)(?:query|statement)\s+(?:failed|error|timeout|timed out)`),
			pat("db-unavailable", `(?i)could not connect to (?:server|database)|database .{0,40}?(?:unavailable|down|refused)`),
			pat("orm-error", `(?i)operationalerror|integrityerror|\bdataerror\b|hibernate`),
			pat("relation-missing", `(?i)(?:relation|table) .{1,60}? does not exist|unknown table`),
		},
	}
}

func newNullPointerExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "nullpointer",
		signalType: model.SignalNullPointer,
		confidence: confNullPointer,
		patterns: []pattern{
			pat("null-pointer", `(?i)nullpointerexception|null pointer dereference`),
			pat("null-reference", `(?i)nullreferenceexception|object reference not set`),
			pat("nonetype", `(?i)'nonetype' object (?:has no attribute|is not)`),
			pat("undefined-access", `(?i)cannot read propert(?:y|ies) of (?:null|undefined)|undefined is not (?:a function|an object)`),
			pat("nil-dereference", `(?i)invalid memory address or nil pointer`),
		},
	}
}

func newImportExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "import",
		signalType: model.SignalImport,
		confidence: confImport,
		patterns: []pattern{
			pat("python-import", `(?i)\bimporterror\b|modulenotfounderror|no module named`),
			pat("java-class", `(?i)classnotfoundexception|noclassdeffounderror|package [\w.]+ does not exist`),
			pat("js-module", `(?i)cannot find module|module not found`),
			pat("dotnet-assembly", `(?i)could not load file or assembly`),
			pat("unresolved-symbol", `(?i)undefined reference to|unresolved import`),
		},
	}
}

func newSyntaxExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "syntax",
		signalType: model.SignalSyntax,
		confidence: confSyntax,
		patterns: []pattern{
			pat("python-syntax", `(?i)\bsyntaxerror\b|indentationerror|\btaberror\b`),
			pat("js-syntax", `(?i)unexpected token|unexpected identifier|unexpected end of (?:input|file)`),
			pat("compile-error", `(?i)compilation (?:error|failed)|compileerror|cannot (?:resolve|find) symbol`),
			pat("parse-error", `(?i)\bparse error\b|parsing error|invalid syntax`),
			pat("name-error", `(?i)\bnameerror\b|name '[^']{1,60}' is not defined`),
			pat("keyword-not-found", `(?i)no keyword with name`),
		},
	}
}
