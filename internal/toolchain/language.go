package toolchain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Command is one stage (compile or run) of a language pipeline.
type Command struct {
	Tool string // tool name for resolution and error messages
	Path string // resolved executable path
	Args []string
}

// Language describes how one supported language is compiled and run.
type Language struct {
	Key        string // c, cpp, java, python
	Display    string // user-visible name in system messages
	SourceFile string // file name written into the workspace
	Compiled   bool
}

var languages = map[string]Language{
	"python": {Key: "python", Display: "Python", SourceFile: "main.py"},
	"java":   {Key: "java", Display: "Java", SourceFile: "Main.java", Compiled: true},
	"cpp":    {Key: "cpp", Display: "C++", SourceFile: "main.cpp", Compiled: true},
	"c":      {Key: "c", Display: "C", SourceFile: "main.c", Compiled: true},
}

// Lookup returns the language config for a key.
func Lookup(key string) (Language, error) {
	lang, ok := languages[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return Language{}, fmt.Errorf("unsupported language: %s", key)
	}
	return lang, nil
}

// CompileCommand builds the compile stage for a compiled language. workDir is
// the per-run workspace holding the source file.
func (l Language) CompileCommand(workDir string) (Command, error) {
	src := filepath.Join(workDir, l.SourceFile)
	switch l.Key {
	case "java":
		tool := Resolve("javac")
		return Command{Tool: "javac", Path: tool, Args: []string{"-d", workDir, src}}, nil
	case "cpp":
		tool := Resolve("g++")
		return Command{Tool: "g++", Path: tool, Args: []string{src, "-o", binaryPath(workDir)}}, nil
	case "c":
		tool := Resolve("gcc")
		return Command{Tool: "gcc", Path: tool, Args: []string{src, "-o", binaryPath(workDir)}}, nil
	default:
		return Command{}, fmt.Errorf("%s does not need compilation", l.Display)
	}
}

// RunCommand builds the run stage.
func (l Language) RunCommand(workDir string) Command {
	switch l.Key {
	case "python":
		tool := Resolve("python")
		return Command{Tool: "python", Path: tool, Args: []string{filepath.Join(workDir, l.SourceFile)}}
	case "java":
		tool := Resolve("java")
		return Command{Tool: "java", Path: tool, Args: []string{"-cp", workDir, "Main"}}
	default: // c, cpp run the compiled binary
		bin := binaryPath(workDir)
		return Command{Tool: bin, Path: bin}
	}
}

func binaryPath(workDir string) string {
	return filepath.Join(workDir, "program")
}
