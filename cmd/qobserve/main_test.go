package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/fumin/qobserve/mat"
	"github.com/fumin/qobserve/sim"
)

const envChild = "QOBSERVE_TEST_CHILD"

// TestMain lets launch start this test binary as a qobserve process.
func TestMain(m *testing.M) {
	if os.Getenv(envChild) != "" {
		log.SetFlags(logFlags)
		if err := mainWithErr(os.Args[1:]); err != nil {
			log.Fatalf("%+v", err)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func execute(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// The observe tests are not parallel since a single rank uses the process-wide worker set.

func TestObserve(t *testing.T) {
	// Floating point output differs across architectures, so only the structure is checked.
	out, err := execute("observe")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "expectation -1.748794861147"), out)
	require.Equal(t, 6, strings.Count(out, "\n"), out)

	out, err = execute("observe", "--workers", "4", "--mode", "root")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "expectation -1.748794861147"), out)

	_, err = execute("observe", "--params", "0.1")
	require.True(t, errors.Is(err, ErrVerification), "%+v", err)

	_, err = execute("observe", "--params", "0.1", "--no-verify")
	require.NoError(t, err)

	_, err = execute("observe", "--shots", "0")
	require.Error(t, err)

	out, err = execute("observe", "--kernel", "h 0", "--hamiltonian", "X0")
	require.NoError(t, err)
	var e float64
	_, err = fmt.Sscanf(out, "expectation %g", &e)
	require.NoError(t, err, out)
	require.InDelta(t, 1, e, 1e-12)
}

func TestObserveConfig(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	path := filepath.Join(dir, "qobserve.yaml")
	content := fmt.Sprintf("shots: 20000\nseed: 3\nworkers: 2\ndb: %s\nverify: {want: -1.7487948611472093, tol: 0.2}\n", db)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := execute("observe", "--config", path)
	require.NoError(t, err)
	_, err = execute("observe", "--config", path, "--workers", "3")
	require.NoError(t, err)

	out, err := execute("runs", "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	require.True(t, strings.HasPrefix(lines[0], "ID"), out)
}

func TestSpectrum(t *testing.T) {
	t.Parallel()
	out, err := execute("spectrum", "--levels", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, out)
	require.True(t, strings.HasPrefix(lines[0], "0 -1.7488649"), out)

	out, err = execute("spectrum", "--ising", "8,1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "0 -9.83795144"), out)
	require.Contains(t, out, "\nmagnetization ")
	require.Contains(t, out, "\nbinder ")

	dir := t.TempDir()
	_, err = execute("spectrum", "--coo", dir)
	require.NoError(t, err)
	m, err := mat.ReadCOO(dir)
	require.NoError(t, err)
	require.Equal(t, 4, m.Rows())

	out, err = execute("spectrum", "--hamiltonian", "X0", "--matrix", "--levels", "2")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, " 0\t 1\n 1\t 0\n0 "), out)
	require.Equal(t, 4, strings.Count(out, "\n"), out)

	_, err = execute("spectrum", "--ising", "3")
	require.Error(t, err)

	// The size limit applies before any matrix is built or written.
	cooDir := t.TempDir()
	_, err = execute("spectrum", "--ising", "13,1", "--coo", cooDir)
	require.ErrorIs(t, err, sim.ErrResourceExhausted)
	_, err = os.Stat(filepath.Join(cooDir, mat.FnameShape))
	require.True(t, os.IsNotExist(err), "%v", err)
}

func TestLaunch(t *testing.T) {
	t.Setenv(envChild, "1")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	exe, err := os.Executable()
	require.NoError(t, err)
	require.NoError(t, launch(ctx, exe, 3, 20*time.Second, nil))
	require.NoError(t, launch(ctx, exe, 2, 20*time.Second, []string{"--shots", "1000", "--no-verify"}))
	require.Error(t, launch(ctx, exe, 2, 20*time.Second, []string{"--params", "0.1"}))
}
