package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/stage"
	"github.com/at-bus-load/internal/table"
	"github.com/at-bus-load/pkg/atbus/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInvalidDateIsRejected(t *testing.T) {
	for _, sub := range []string{"extract", "load", "run", "check"} {
		t.Run(sub, func(t *testing.T) {
			_, err := execute(t, sub, "--date", "2024-1-5")
			require.Error(t, err)
			assert.Equal(t, "Invalid date format: 2024-1-5. Please use YYYY-MM-DD format.", err.Error())
		})
	}
}

func fileStorageEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("STORAGE_LOCAL_DIR", dir)
	t.Setenv("STORAGE_BUCKET", "pne-open-data")
	t.Setenv("STORAGE_PREFIX", "")
	t.Setenv("LOG_FILE", filepath.Join(dir, "test.log"))
	return dir
}

func TestCheckReportsStagedArtifacts(t *testing.T) {
	dir := fileStorageEnv(t)

	store, err := stage.NewFileStore(dir, "pne-open-data")
	require.NoError(t, err)
	stager := stage.NewStager(store, "", logger.Nop())
	_, err = stager.Stage(context.Background(), models.StopsKey("2024-01-15"), &table.Stops{})
	require.NoError(t, err)
	_, err = stager.Stage(context.Background(), models.TripsKey("2024-01-15", "8147-a"), &table.Trips{})
	require.NoError(t, err)

	out, err := execute(t, "check", "--date", "2024-01-15")
	require.NoError(t, err)
	assert.Contains(t, out, "stops/2024-01-15/stops.parquet")
	assert.Contains(t, out, "trips/2024-01-15/trips_8147-a.parquet")
}

func TestCheckFailsWhenNothingIsStaged(t *testing.T) {
	fileStorageEnv(t)

	out, err := execute(t, "check", "--date", "2024-01-15")
	require.Error(t, err)
	assert.ErrorIs(t, err, stage.ErrNotExist)
	assert.Contains(t, out, "missing")
}

func TestCheckSingleObject(t *testing.T) {
	fileStorageEnv(t)

	out, err := execute(t, "check", "--object", "personality_dataset.csv")
	require.Error(t, err)
	assert.Contains(t, out, "The file personality_dataset.csv does not exist in bucket pne-open-data")
}

func TestExtractRequiresAPIKey(t *testing.T) {
	fileStorageEnv(t)
	t.Setenv("AT_API_KEY", "")

	_, err := execute(t, "extract", "--date", "2024-01-15")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api configuration")
}
