package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placesdata/pipeline/config"
)

func extractConfig(url, rawDir string) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			RequestURL:    url,
			OrderKey:      ":id",
			Timeout:       5 * time.Second,
			RetryAttempts: 3,
		},
		Run:    config.RunConfig{BatchSize: 1000, RawDir: rawDir},
		Output: config.OutputConfig{DatasetName: "cdc_data"},
	}
}

func TestRunExtractZeroRowsSkipsPersistence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "year,data_value\n")
	}))
	defer server.Close()

	rawDir := filepath.Join(t.TempDir(), "raw")
	require.NoError(t, runExtract(context.Background(), extractConfig(server.URL, rawDir)))

	// No artifact directory, no blank files.
	_, err := os.Stat(rawDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRunExtractSavesArtifact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$offset") != "0" {
			fmt.Fprint(w, "year,data_value\n")
			return
		}
		fmt.Fprint(w, "year,data_value\n2022,23.1\n")
	}))
	defer server.Close()

	rawDir := filepath.Join(t.TempDir(), "raw")
	require.NoError(t, runExtract(context.Background(), extractConfig(server.URL, rawDir)))

	matches, err := filepath.Glob(filepath.Join(rawDir, "cdc_data_*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "year,data_value\n2022,23.1\n", string(data))
}
