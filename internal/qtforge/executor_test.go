package qtforge

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}

	for name, tCase := range map[string]func(t *testing.T){
		"CapturesOutput": func(t *testing.T) {
			var out bytes.Buffer
			cmd := exec.Command("sh", "-c", "echo hello")
			cmd.Stdout = &out
			require.NoError(t, NewExecutor(context.Background()).Run(cmd))
			assert.Equal(t, "hello\n", out.String())
		},
		"ReportsFailure": func(t *testing.T) {
			err := NewExecutor(context.Background()).Run(exec.Command("sh", "-c", "exit 3"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "exit 3")
		},
		"DryRunDoesNotExecute": func(t *testing.T) {
			e := NewExecutor(context.Background())
			e.DryRun = true
			dir := t.TempDir()
			cmd := exec.Command("sh", "-c", "touch marker")
			cmd.Dir = dir
			require.NoError(t, e.Run(cmd))
			assert.NoFileExists(t, dir+"/marker")
		},
		"CancelKillsProcessGroup": func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(100*time.Millisecond, cancel)
			start := time.Now()
			err := NewExecutor(ctx).Run(exec.Command("sh", "-c", "sleep 30; true"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "aborted")
			assert.Less(t, time.Since(start), 10*time.Second)
		},
		"MissingBinary": func(t *testing.T) {
			err := NewExecutor(context.Background()).Run(exec.Command("qtforge-no-such-tool"))
			assert.Error(t, err)
		},
	} {
		t.Run(name, tCase)
	}
}

func TestCommandLine(t *testing.T) {
	cmd := exec.Command("conan", "create", "/tmp/my build", "qt/5.15.2@")
	assert.Equal(t, "conan create '/tmp/my build' qt/5.15.2@", commandLine(cmd))
}
