package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get home dir: %v", err)
	}

	t.Setenv("FLOW_TEST_DIR", "/srv/flow")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty path",
			input: "",
			want:  "",
		},
		{
			name:  "tilde only",
			input: "~",
			want:  homeDir,
		},
		{
			name:  "tilde with path",
			input: "~/.openspec-flow/config.yaml",
			want:  filepath.Join(homeDir, ".openspec-flow", "config.yaml"),
		},
		{
			name:  "absolute path unchanged",
			input: "/var/lib/flow",
			want:  "/var/lib/flow",
		},
		{
			name:  "relative path cleaned",
			input: "changes/./add-auth",
			want:  "changes/add-auth",
		},
		{
			name:  "env var",
			input: "$FLOW_TEST_DIR/history.db",
			want:  "/srv/flow/history.db",
		},
		{
			name:  "braced env var",
			input: "${FLOW_TEST_DIR}/history.db",
			want:  "/srv/flow/history.db",
		},
		{
			name:  "home env var",
			input: "$HOME/projects",
			want:  filepath.Join(homeDir, "projects"),
		},
		{
			name:  "dot-dot collapsed",
			input: "/a/b/../c",
			want:  "/a/c",
		},
		{
			name:  "duplicate slashes cleaned",
			input: "/path//to///file",
			want:  "/path/to/file",
		},
		{
			name:  "trailing slash cleaned",
			input: "/path/to/dir/",
			want:  "/path/to/dir",
		},
		{
			name:  "undefined env var expands to nothing",
			input: "$FLOW_UNDEFINED_VAR/path",
			want:  "/path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			if err != nil {
				t.Fatalf("ExpandPath(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandPath_TildeOnlyAtStart(t *testing.T) {
	got, err := ExpandPath("/path/to/~")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "~") {
		t.Errorf("tilde inside a path must not expand, got %q", got)
	}
}
