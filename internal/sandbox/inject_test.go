package sandbox

import (
	"strings"
	"testing"
)

func TestEnsureUnbufferedStdout(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		wantInject bool
	}{
		{
			name:       "plain int main",
			source:     "#include <stdio.h>\nint main() {\n    printf(\"hi\");\n    return 0;\n}\n",
			wantInject: true,
		},
		{
			name:       "main with args",
			source:     "int main(int argc, char **argv) {\n    return 0;\n}\n",
			wantInject: true,
		},
		{
			name:       "void main",
			source:     "void main() {\n}\n",
			wantInject: true,
		},
		{
			name:       "brace on next line",
			source:     "int main(void)\n{\n    return 0;\n}\n",
			wantInject: true,
		},
		{
			name:       "already calls setvbuf",
			source:     "int main() {\n    setvbuf(stdout, NULL, _IONBF, 0);\n    return 0;\n}\n",
			wantInject: false,
		},
		{
			name:       "already calls setbuf",
			source:     "int main() {\n    setbuf(stdout, NULL);\n    return 0;\n}\n",
			wantInject: false,
		},
		{
			name:       "no main at all",
			source:     "int helper() { return 1; }\n",
			wantInject: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnsureUnbufferedStdout(tt.source)
			if tt.wantInject {
				if !strings.Contains(got, "setvbuf(stdout, NULL, _IONBF, 0);") {
					t.Fatalf("expected injection, got:\n%s", got)
				}
				// The rest of the source must survive untouched.
				if !strings.HasPrefix(got, tt.source[:strings.Index(tt.source, "{")+1]) {
					t.Fatalf("prefix before main's brace was altered:\n%s", got)
				}
			} else if got != tt.source {
				t.Fatalf("source must be byte-exact, got:\n%s", got)
			}
		})
	}
}

func TestEnsureUnbufferedStdoutInsertsInsideMain(t *testing.T) {
	source := "int helper() { return 1; }\nint main() {\n    return helper();\n}\n"
	got := EnsureUnbufferedStdout(source)
	mainAt := strings.Index(got, "int main")
	injectAt := strings.Index(got, "setvbuf")
	if injectAt < mainAt {
		t.Fatalf("injection landed before main:\n%s", got)
	}
}
