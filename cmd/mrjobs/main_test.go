package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mrjobs/mapreduce/engine"
)

func TestCheckCommand(t *testing.T) {
	valid := [][]string{
		{"run", "commonfriends", "in", "out"},
		{"map", "minmaxavecity"},
		{"reduce", "minmaxavecity"},
		{"list"},
		{"verify", "out"},
	}
	for _, cmd := range valid {
		require.NoError(t, checkCommand(cmd), cmd)
	}
	invalid := [][]string{
		nil,
		{"run", "commonfriends", "in"},
		{"map"},
		{"list", "extra"},
		{"verify"},
		{"upload", "a", "b"},
	}
	for _, cmd := range invalid {
		require.Error(t, checkCommand(cmd), cmd)
	}
}

func TestListJobs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listJobs(&buf))
	require.Contains(t, buf.String(), "commonfriends")
	require.Contains(t, buf.String(), "minmaxavecity")
	require.Contains(t, buf.String(), "minmaxtemppermonth")
}

func TestRunAndVerify(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "readings.txt")
	require.NoError(t, os.WriteFile(input, []byte("s1\t1\tParis\t0\ns2\t1\tParis\t10\ns3\t1\tParis\t20\n"), 0o644))
	out := filepath.Join(root, "out")

	cfg := engine.DefaultConfig()
	cfg.WorkDir = t.TempDir()
	require.NoError(t, runJob(context.Background(), "minmaxavecity", input, out, cfg))

	var buf bytes.Buffer
	require.NoError(t, verify(&buf, out))
	require.Contains(t, buf.String(), "part-r-00000\t")
	require.Contains(t, buf.String(), "\tok\n")

	data, err := os.ReadFile(filepath.Join(out, "part-r-00000"))
	require.NoError(t, err)
	require.Equal(t, "Paris month 1:\t0 20 10.0\n", string(data))
}
