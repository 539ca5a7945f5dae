// Package resolver walks stacktraces to the first user-code frame and
// reads a source snippet around it. Framework frames are skipped by a
// configurable prefix list; source files are cached with TTL+LRU.
package resolver

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/model"
)

const defaultSnippetRadius = 5

// defaultSkipPrefixes marks framework internals. A frame is skipped when
// its file path contains the entry or its function qualifier starts with
// it (the trailing dot on JVM entries keeps "LoginTest.java" safe).
var defaultSkipPrefixes = []string{
	"site-packages", "dist-packages", "_pytest", "pytest", "unittest",
	"selenium", "playwright", "behave", "robot", "nose",
	"node_modules", "internal/", "cypress", "webdriver",
	"org.junit.", "org.testng.", "org.openqa.", "io.restassured.",
	"java.", "jdk.", "sun.",
	"nunit.framework", "techtalk.specflow", "cucumber",
}

// Config controls frame skipping, snippet size, and the source cache.
type Config struct {
	SourceRoot    string
	SnippetRadius int
	SkipPrefixes  []string // appended to the built-in list
	CacheSize     int
	CacheTTL      time.Duration
}

// Resolver turns stacktraces into code references.
type Resolver struct {
	root   string
	radius int
	skip   []string
	cache  *sourceCache
	logger *zap.Logger
}

// New builds a Resolver. Zero-value config fields fall back to defaults:
// source root ".", radius 5, built-in skip list.
func New(cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	root := cfg.SourceRoot
	if root == "" {
		root = "."
	}
	radius := cfg.SnippetRadius
	if radius <= 0 {
		radius = defaultSnippetRadius
	}
	skip := make([]string, 0, len(defaultSkipPrefixes)+len(cfg.SkipPrefixes))
	skip = append(skip, defaultSkipPrefixes...)
	for _, p := range cfg.SkipPrefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			skip = append(skip, p)
		}
	}
	return &Resolver{
		root:   root,
		radius: radius,
		skip:   skip,
		cache:  newSourceCache(cfg.CacheSize, cfg.CacheTTL),
		logger: logger.Named("resolver"),
	}
}

// Resolve walks the stacktrace to the first non-framework frame and
// returns its code reference. Any failure along the way, from an
// unparseable trace to an unreadable source file, returns nil so the
// classification is never blocked on source availability.
func (r *Resolver) Resolve(stack string) *model.CodeReference {
	frames := ParseStack(stack)
	if len(frames) == 0 {
		return nil
	}
	var frame *Frame
	for i := range frames {
		if !r.skipped(&frames[i]) {
			frame = &frames[i]
			break
		}
	}
	if frame == nil {
		r.logger.Debug("all frames matched skip prefixes", zap.Int("frames", len(frames)))
		return nil
	}

	lines, ok := r.readSource(frame)
	if !ok {
		r.logger.Debug("source file not readable",
			zap.String("file", frame.File),
			zap.String("root", r.root))
		return nil
	}
	snip, ok := snippet(lines, frame.Line, r.radius)
	if !ok {
		r.logger.Debug("frame line outside source file",
			zap.String("file", frame.File),
			zap.Int("line", frame.Line),
			zap.Int("file_lines", len(lines)))
		return nil
	}

	ref := &model.CodeReference{
		File:         frame.File,
		Line:         frame.Line,
		Function:     frame.Function,
		Snippet:      snip,
		LanguageHint: frame.Language,
	}
	if name := backScanClass(lines, frame.Line, frame.Language); name != "" {
		ref.ClassName = name
	} else if frame.Language == "java" || frame.Language == "csharp" {
		ref.ClassName = classFromQualifier(frame.Function)
	}
	return ref
}

// CacheStats exposes source-cache counters for diagnostics.
func (r *Resolver) CacheStats() (size int, hits, misses int64) {
	s := r.cache.stats()
	return s.Size, s.Hits, s.Misses
}

func (r *Resolver) skipped(f *Frame) bool {
	file := strings.ToLower(f.File)
	fn := strings.ToLower(f.Function)
	for _, p := range r.skip {
		if strings.Contains(file, p) {
			return true
		}
		if fn != "" && strings.HasPrefix(fn, p) {
			return true
		}
	}
	return false
}

func (r *Resolver) readSource(f *Frame) ([]string, bool) {
	for _, path := range r.candidates(f) {
		if lines, ok := r.cache.get(path); ok {
			return lines, true
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		lines := strings.Split(string(data), "\n")
		r.cache.put(path, lines)
		return lines, true
	}
	return nil, false
}

// candidates lists the paths to try for a frame, most specific first.
// JVM and .NET traces carry bare file names, so the package part of the
// function qualifier doubles as a directory hint.
func (r *Resolver) candidates(f *Frame) []string {
	var out []string
	if filepath.IsAbs(f.File) {
		out = append(out, f.File)
	} else {
		out = append(out, filepath.Join(r.root, f.File))
	}
	if (f.Language == "java" || f.Language == "csharp") && !strings.ContainsRune(f.File, os.PathSeparator) {
		if pkg := packagePath(f.Function); pkg != "" {
			out = append(out,
				filepath.Join(r.root, filepath.FromSlash(pkg), f.File),
				filepath.Join(r.root, "src", "test", "java", filepath.FromSlash(pkg), f.File),
				filepath.Join(r.root, "src", "main", "java", filepath.FromSlash(pkg), f.File))
		}
	}
	return out
}

func snippet(lines []string, line, radius int) (string, bool) {
	if line < 1 || line > len(lines) {
		return "", false
	}
	lo := line - radius
	if lo < 1 {
		lo = 1
	}
	hi := line + radius
	if hi > len(lines) {
		hi = len(lines)
	}
	return strings.Join(lines[lo-1:hi], "\n"), true
}

var classRes = map[string]*regexp.Regexp{
	"python":     regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`),
	"java":       regexp.MustCompile(`^\s*(?:[\w@]+\s+)*class\s+([A-Za-z_$]\w*)`),
	"csharp":     regexp.MustCompile(`^\s*(?:[\w@\[\]]+\s+)*class\s+([A-Za-z_]\w*)`),
	"javascript": regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?class\s+([A-Za-z_$]\w*)`),
}

// backScanClass finds the enclosing class by scanning upward from the
// frame line for a class declaration.
func backScanClass(lines []string, from int, language string) string {
	re, ok := classRes[language]
	if !ok {
		return ""
	}
	if from > len(lines) {
		from = len(lines)
	}
	for i := from; i >= 1; i-- {
		if m := re.FindStringSubmatch(lines[i-1]); m != nil {
			return m[1]
		}
	}
	return ""
}
