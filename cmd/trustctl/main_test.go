package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := rootCommand(&options{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := rootCommand(&options{})
	for _, path := range [][]string{
		{"ingest"},
		{"retries", "list"},
		{"retries", "sweep"},
		{"anomalies", "export"},
		{"budget"},
	} {
		cmd, rest, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	export, _, err := root.Find([]string{"anomalies", "export"})
	require.NoError(t, err)
	assert.Equal(t, "24h0m0s", export.Flags().Lookup("since").DefValue)
}

func TestIngestValidatesInputBeforeWiring(t *testing.T) {
	_, err := execute(t, "ingest", "--file", "records.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--scraper is required")

	_, err = execute(t, "ingest", "--scraper", "OLX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file")

	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"kind":"telepathy"}]`), 0o600))
	_, err = execute(t, "ingest", "--file", path, "--scraper", "OLX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telepathy")
}
