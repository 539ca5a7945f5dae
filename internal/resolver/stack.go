package resolver

import (
	"regexp"
	"strconv"
	"strings"
)

// Frame is one parsed stack frame. ParseStack returns frames normalized
// innermost-first regardless of how the language prints them.
type Frame struct {
	File     string
	Line     int
	Function string
	Language string
}

var (
	// File "tests/test_login.py", line 42, in test_login
	pythonFrameRe = regexp.MustCompile(`^\s*File "([^"]+)", line (\d+)(?:, in (\S+))?`)
	// at com.shop.LoginTest.testLogin(LoginTest.java:42)
	javaFrameRe = regexp.MustCompile(`^\s*at ([\w$.<>/]+)\(([^:()]+?)(?::(\d+))?\)`)
	// at Shop.Tests.LoginTests.TestLogin() in C:\ci\tests\LoginTests.cs:line 42
	dotnetFrameRe = regexp.MustCompile(`^\s*at ([\w.<>\[\]]+)\(.*?\) in (.+):line (\d+)`)
	// at LoginPage.submit (tests/pages/login.js:42:15)  |  at /app/spec.js:10:5
	jsFrameRe = regexp.MustCompile(`^\s*at (?:([\w$.<>\[\] ]+?)\s+\()?((?:[A-Za-z]:)?[^():]+):(\d+)(?::(\d+))?\)?\s*$`)
)

// ParseStack extracts frames from a raw stacktrace. Python prints the
// innermost frame last, so python traces are reversed; Java, .NET, and
// JavaScript already print innermost-first.
func ParseStack(stack string) []Frame {
	if stack == "" {
		return nil
	}
	var frames []Frame
	python := false
	for _, line := range strings.Split(stack, "\n") {
		if m := pythonFrameRe.FindStringSubmatch(line); m != nil {
			python = true
			frames = append(frames, Frame{
				File:     m[1],
				Line:     atoi(m[2]),
				Function: m[3],
				Language: "python",
			})
			continue
		}
		if m := dotnetFrameRe.FindStringSubmatch(line); m != nil {
			frames = append(frames, Frame{
				File:     m[2],
				Line:     atoi(m[3]),
				Function: m[1],
				Language: "csharp",
			})
			continue
		}
		if m := javaFrameRe.FindStringSubmatch(line); m != nil {
			frames = append(frames, Frame{
				File:     m[2],
				Line:     atoi(m[3]),
				Function: m[1],
				Language: "java",
			})
			continue
		}
		if m := jsFrameRe.FindStringSubmatch(line); m != nil {
			frames = append(frames, Frame{
				File:     m[2],
				Line:     atoi(m[3]),
				Function: strings.TrimSpace(m[1]),
				Language: "javascript",
			})
		}
	}
	if python {
		for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
			frames[i], frames[j] = frames[j], frames[i]
		}
	}
	return frames
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// classFromQualifier pulls the class name out of a dotted function
// qualifier such as "com.shop.LoginTest.testLogin". JVM module prefixes
// ("java.base/...") are stripped first.
func classFromQualifier(fn string) string {
	if i := strings.IndexByte(fn, '/'); i >= 0 {
		fn = fn[i+1:]
	}
	parts := strings.Split(fn, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// packagePath converts the package part of a dotted qualifier into a
// directory path: "com.shop.LoginTest.testLogin" becomes "com/shop".
func packagePath(fn string) string {
	if i := strings.IndexByte(fn, '/'); i >= 0 {
		fn = fn[i+1:]
	}
	parts := strings.Split(fn, ".")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[:len(parts)-2], "/")
}
