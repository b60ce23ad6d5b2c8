package dealers_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasing/risk-engine/internal/dealers"
	"leasing/risk-engine/internal/domain"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (c *countingRunner) Run(_ context.Context, date domain.Date) (dealers.Result, error) {
	c.calls.Add(1)
	return dealers.Result{SnapshotDate: date}, c.err
}

func TestSchedule_RegistersJob(t *testing.T) {
	c := cron.New()
	r := &countingRunner{}

	id, err := dealers.Schedule(c, "0 2 * * *", r, discard)
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)

	c.Entry(id).Job.Run()

	assert.Equal(t, int32(1), r.calls.Load())
}

func TestSchedule_FailingRunIsLogged(t *testing.T) {
	c := cron.New()
	r := &countingRunner{err: errors.New("dwh down")}

	id, err := dealers.Schedule(c, "@daily", r, discard)
	require.NoError(t, err)

	assert.NotPanics(t, func() { c.Entry(id).Job.Run() })
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestSchedule_InvalidSpec(t *testing.T) {
	_, err := dealers.Schedule(cron.New(), "every night", &countingRunner{}, discard)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid schedule "every night"`)
}
