package qtforge

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingRunner records every command instead of running it. fail, when
// set, decides the result of each call.
type recordingRunner struct {
	calls [][]string
	dirs  []string
	fail  func(args []string) error
}

func (r *recordingRunner) Run(cmd *exec.Cmd) error {
	args := append([]string(nil), cmd.Args...)
	r.calls = append(r.calls, args)
	r.dirs = append(r.dirs, cmd.Dir)
	if r.fail != nil {
		return r.fail(args)
	}
	return nil
}

func (r *recordingRunner) commands() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}

// writeFiles creates files under root from a name -> content map.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
