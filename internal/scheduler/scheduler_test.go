package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	err  error
	runs int
}

func (j *countingJob) Run() error {
	j.runs++
	return j.err
}

func (j *countingJob) Name() string { return j.name }

func TestAddJobRegistersForStatus(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("0 0 6 * * *", &countingJob{name: "risk_refresh"}))
	require.NoError(t, s.AddJob("@hourly", &countingJob{name: "cache_cleanup"}))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "cache_cleanup", jobs[0].Name)
	assert.Equal(t, "@hourly", jobs[0].Schedule)
	assert.Equal(t, "risk_refresh", jobs[1].Name)
	assert.Equal(t, "0 0 6 * * *", jobs[1].Schedule)
	// never started, so no run history yet
	assert.Nil(t, jobs[0].LastRun)
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a cron schedule", &countingJob{name: "broken"})
	require.Error(t, err)
	assert.Empty(t, s.Jobs())
}

func TestRunNowExecutesImmediately(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "risk_refresh"}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)
}

func TestRunNowPropagatesError(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "broken", err: errors.New("backing store down")}

	err := s.RunNow(job)
	require.Error(t, err)
	assert.Equal(t, 1, job.runs)
}

func TestStartStop(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "noop"}))

	s.Start()
	s.Stop()

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].NextRun.IsZero())
}
