// Package toolchain locates compilers and interpreters across platforms and
// caches the results for the process lifetime.
package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"codelab/internal/logging"
)

// resolved memoizes tool lookups. Populating the same key twice writes the
// same value, so the cache is safe under concurrent readers.
var resolved sync.Map // tool name -> executable path

// Resolve returns the executable path for a tool. Lookup precedence:
//
//  1. the <TOOL>_PATH environment override (name uppercased, '+' -> 'P'),
//  2. the bare name in PATH,
//  3. well-known installation prefixes for the current OS,
//  4. the bare name itself (spawn will fail and the caller reports it).
//
// Extra search paths, if given, are checked alongside the built-in prefixes.
func Resolve(tool string, extraSearchPaths ...string) string {
	if cached, ok := resolved.Load(tool); ok {
		return cached.(string)
	}

	path := resolve(tool, extraSearchPaths)
	resolved.Store(tool, path)
	return path
}

func resolve(tool string, extraSearchPaths []string) string {
	if override := os.Getenv(envOverrideKey(tool)); override != "" {
		if _, err := os.Stat(override); err == nil {
			return override
		}
		logging.S().Warnw("tool path override does not exist, ignoring",
			"tool", tool, "override", override)
	}

	if path, err := exec.LookPath(tool); err == nil {
		return path
	}

	exeName := tool
	if runtime.GOOS == "windows" {
		exeName = tool + ".exe"
	}
	for _, prefix := range append(extraSearchPaths, knownPrefixes()...) {
		candidate := filepath.Join(prefix, exeName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}

	// Let the spawn fail with a recognizable error; the supervisor maps it to
	// a user-visible tool-not-found message.
	return tool
}

// envOverrideKey derives the environment variable for a tool override,
// e.g. gcc -> GCC_PATH, g++ -> GPP_PATH.
func envOverrideKey(tool string) string {
	name := strings.ToUpper(tool)
	name = strings.ReplaceAll(name, "+", "P")
	return name + "_PATH"
}

// knownPrefixes returns common toolchain installation directories for the
// current OS, for installs that never made it onto PATH.
func knownPrefixes() []string {
	if runtime.GOOS == "windows" {
		return []string{
			`C:\MinGW\bin`,
			`C:\msys64\mingw64\bin`,
			`C:\msys64\ucrt64\bin`,
			`C:\msys64\usr\bin`,
			`C:\TDM-GCC-64\bin`,
			`C:\cygwin64\bin`,
			filepath.Join(os.Getenv("USERPROFILE"), `scoop\shims`),
			`C:\ProgramData\chocolatey\bin`,
			`C:\Program Files (x86)\Dev-Cpp\MinGW64\bin`,
			`C:\Program Files (x86)\CodeBlocks\MinGW\bin`,
		}
	}
	return []string{
		"/usr/local/bin",
		"/usr/bin",
		"/opt/homebrew/bin",
		"/opt/local/bin",
	}
}

// resetCache clears memoized lookups. Test hook.
func resetCache() {
	resolved.Range(func(key, _ interface{}) bool {
		resolved.Delete(key)
		return true
	})
}
