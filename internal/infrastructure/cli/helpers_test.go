package cli

import (
	"bytes"
	"io"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MILESTONE_MODE", "MILESTONE_BUCKET", "MILESTONE_REMOTE_URL", "MILESTONE_AI_PROVIDER", "MILESTONE_AI_MODEL", "MILESTONE_WEBHOOK_URL"} {
		t.Setenv(key, "")
	}
}

// runCLI executes the root command against root and returns its stdout.
func runCLI(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()

	projectPath, logLevel, jsonOutput = "", "warn", false
	statusPriority, statusExpand = "", false
	exportOutput = ""
	configMode, configBucket, configURL, configProvider, configModel, configForce = "", "", "", "", "", false

	var out bytes.Buffer
	RootCmd.SetArgs(append([]string{"--root", root, "--log-level", "error"}, args...))
	RootCmd.SetOut(&out)
	RootCmd.SetErr(io.Discard)
	defer func() {
		RootCmd.SetArgs(nil)
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
	}()

	err := RootCmd.Execute()
	return out.String(), err
}
