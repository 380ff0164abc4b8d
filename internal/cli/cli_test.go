package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, run func(*cobra.Command, []string) error, args []string) (string, string, error) {
	t.Helper()
	cmd := &cobra.Command{}
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := run(cmd, args)
	return stdout.String(), stderr.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "POST.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"type": "POST", "version": "1.0"}`), 0o644))
	bad := filepath.Join(dir, "BAD.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type": "lowercase", "version": "x"}`), 0o644))

	stdout, _, err := runCommand(t, runValidate, []string{good})
	require.NoError(t, err)
	require.Contains(t, stdout, "ok (POST)")

	_, stderr, err := runCommand(t, runValidate, []string{good, bad})
	require.Error(t, err)
	require.Contains(t, stderr, "type:")
	require.Contains(t, err.Error(), "1 of 2 files invalid")
}

func TestTypesCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "POST.json"),
		[]byte(`{"type": "POST", "version": "1.2"}`), 0o644))
	t.Chdir(dir)
	t.Setenv("ACTRA_ENGINE_TENANT_TAG", "alice.example.com")
	t.Setenv("ACTRA_ENGINE_DEFINITIONS_DIR", dir)

	stdout, _, err := runCommand(t, runTypes, nil)
	require.NoError(t, err)
	require.Contains(t, stdout, "POST")
	require.Contains(t, stdout, "v1.2")
}
