package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-bus-load/pkg/atbus/models"
)

func TestRunHappyPath(t *testing.T) {
	r := NewRun("run", models.StopsKey("2024-01-15"))
	for _, s := range []State{Fetched, Validated, Staged, Loaded} {
		require.NoError(t, r.Advance(s))
	}
	assert.Equal(t, Loaded, r.State)
	assert.Equal(t, []State{Requested, Fetched, Validated, Staged, Loaded}, r.Path())
	assert.True(t, r.State.Terminal())
}

func TestRunRejectsSkippedState(t *testing.T) {
	r := NewRun("run", models.StopsKey("2024-01-15"))
	err := r.Advance(Staged)

	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, Requested, terr.From)
	assert.Equal(t, Staged, terr.To)
	assert.Equal(t, Requested, r.State)
}

func TestRunFailIsTerminal(t *testing.T) {
	r := NewRun("run", models.StopsKey("2024-01-15"))
	require.NoError(t, r.Advance(Fetched))

	cause := errors.New("boom")
	assert.Equal(t, cause, r.Fail(cause))
	assert.Equal(t, Failed, r.State)
	assert.Equal(t, cause, r.Err)

	assert.Error(t, r.Advance(Validated))
	assert.Error(t, r.Fail(cause))
	assert.Equal(t, []State{Requested, Fetched, Failed}, r.Path())
}

func TestLoadedRunCannotFail(t *testing.T) {
	r := ResumeRun("run", models.StopsKey("2024-01-15"), Staged)
	require.NoError(t, r.Advance(Loaded))
	assert.Error(t, r.Fail(errors.New("late")))
	assert.Equal(t, Loaded, r.State)
}

func TestResumeRun(t *testing.T) {
	r := ResumeRun("run", models.TripsKey("2024-01-15", "R1"), Staged)
	assert.Equal(t, []State{Staged}, r.Path())
	assert.Error(t, r.Advance(Fetched))
}
