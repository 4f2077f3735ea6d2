package sandbox

import (
	"regexp"
	"strings"
)

// cMainPattern matches the opening of main in C sources:
// "int main(...)" or "void main(...)" followed by the opening brace.
var cMainPattern = regexp.MustCompile(`(?s)(int|void)\s+main\s*\([^)]*\)\s*\{`)

// EnsureUnbufferedStdout injects setvbuf(stdout, NULL, _IONBF, 0); right
// after the opening brace of main in a C source, so interactive output
// reaches the client without waiting for a full block. Sources that already
// manage their own buffering are left byte-exact.
func EnsureUnbufferedStdout(source string) string {
	if strings.Contains(source, "setvbuf") || strings.Contains(source, "setbuf") {
		return source
	}
	loc := cMainPattern.FindStringIndex(source)
	if loc == nil {
		return source
	}
	insertAt := loc[1]
	return source[:insertAt] + "\n    setvbuf(stdout, NULL, _IONBF, 0);" + source[insertAt:]
}
