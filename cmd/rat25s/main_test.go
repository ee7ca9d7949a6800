package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, fs afero.Fs, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr, fs)
	return code, stdout.String(), stderr.String()
}

func TestRunCompilesFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/ok.rat", []byte("$$ integer x; $$ x = 5; print(x); $$"), 0o644))

	code, stdout, _ := runCLI(t, fs, "/src/ok.rat")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "=== Running Test Case: ok ===")
	assert.Contains(t, stdout, "[ 2]   STO    10000")

	transcript, err := afero.ReadFile(fs, "/src/ok_output.txt")
	require.NoError(t, err)
	assert.Equal(t, stdout, string(transcript))
}

func TestRunFailingCaseExitsNonZero(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/bad.rat", []byte("$$ integer x; $$ y = 5; $$"), 0o644))

	code, stdout, _ := runCLI(t, fs, "/src/bad.rat")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "UseBeforeDeclaration")
}

func TestRunFlagsOverrideManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/rat25s.toml", []byte(`
[compiler]
base-address = 100

[[case]]
source = "prog.rat"
output = "out/prog.txt"
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/proj/prog.rat", []byte("$$ integer a, b; $$ a = -b; $$"), 0o644))

	code, stdout, _ := runCLI(t, fs, "-c", "/proj/rat25s.toml", "--precedence", "--no-trace", "--object-dir", "/obj")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "a              100 ")
	assert.Contains(t, stdout, "NEG")
	assert.NotContains(t, stdout, "<Rat25S>")

	exists, _ := afero.Exists(fs, "/proj/out/prog.txt")
	assert.True(t, exists)

	code, stdout, _ = runCLI(t, fs, "dump", "/obj/prog.r25o")
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(stdout, "; Rat25S object v1\n"))
	assert.Contains(t, stdout, "PUSHM  101")
}

func TestRunHistory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/ok.rat", []byte("$$ integer x; $$ x = 1; $$"), 0o644))
	db := filepath.Join(t.TempDir(), "runs.db")

	code, _, _ := runCLI(t, fs, "--db", db, "/src/ok.rat")
	require.Equal(t, 0, code)

	code, stdout, _ := runCLI(t, fs, "--db", db, "history")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "ok")

	code, stdout, _ = runCLI(t, fs, "--db", db, "history", "ok")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "=== Running Test Case: ok ===")

	code, _, stderr := runCLI(t, fs, "--db", db, "history", "missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "run not found")
}

func TestRunUsage(t *testing.T) {
	fs := afero.NewMemMapFs()

	code, _, stderr := runCLI(t, fs)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage: rat25s")

	code, _, _ = runCLI(t, fs, "--no-such-flag")
	assert.Equal(t, 2, code)

	code, _, _ = runCLI(t, fs, "dump")
	assert.Equal(t, 2, code)

	code, _, _ = runCLI(t, fs, "history")
	assert.Equal(t, 2, code)
}
