package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRoot("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good")
	require.NoError(t, os.WriteFile(good, []byte("profile good /bin/good {\n  /tmp/** rw,\n  network inet stream,\n}\n"), 0o644))

	out, _, err := runCommand(t, "check", "--abstractions", dir, good)
	require.NoError(t, err)
	assert.Contains(t, out, `profile "good": 1 file rules, 1 network rules`)
}

func TestCheckCommandFails(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte("profile bad /bin/bad {\n  nonsense,\n}\n"), 0o644))

	_, errOut, err := runCommand(t, "check", "--abstractions", dir, bad)
	require.Error(t, err)
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.Code())
	assert.Contains(t, errOut, "unknown directive")
}

func TestProfilesCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc"), []byte("profile svc /bin/svc flags=(attach_disconnected) {\n  /srv/** rw,\n}\n"), 0o644))

	out, _, err := runCommand(t, "profiles", "--profiles", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "svc\t/bin/svc flags=(attach_disconnected)\t1 file rules, 0 network rules")
}

func TestEvalCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc"), []byte("profile svc /bin/svc {\n  /srv/** rw,\n}\n"), 0o644))

	out, _, err := runCommand(t, "eval",
		"--profiles", dir, "--binary", "/bin/svc",
		"--kind", "file", "--path", "/srv/data", "--perms", "w")
	require.NoError(t, err)
	assert.Contains(t, out, `"effect": "allow"`)

	_, _, err = runCommand(t, "eval",
		"--profiles", dir, "--binary", "/bin/svc",
		"--kind", "file", "--path", "/etc/passwd", "--perms", "r")
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.Code())
}
