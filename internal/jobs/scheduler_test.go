package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	calls int
	err   error
}

func (f *fakePurger) PurgeExpiredResetTokens(context.Context) (int64, error) {
	f.calls++
	return 3, f.err
}

type fakeArchiver struct {
	calls int
}

func (f *fakeArchiver) ArchiveEnded(context.Context) (int64, error) {
	f.calls++
	return 1, nil
}

func TestScheduler_RunsJobs(t *testing.T) {
	purger := &fakePurger{}
	archiver := &fakeArchiver{}
	s := NewScheduler(purger, archiver)

	s.PurgeResetTokens(context.Background())
	s.ArchivePromotions(context.Background())

	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, 1, archiver.calls)
}

func TestScheduler_JobErrorDoesNotPanic(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	s := NewScheduler(purger, &fakeArchiver{})

	assert.NotPanics(t, func() { s.PurgeResetTokens(context.Background()) })
}

func TestScheduler_SpecsParse(t *testing.T) {
	for _, spec := range []string{PurgeResetTokensSpec, ArchivePromotionSpec} {
		_, err := cron.ParseStandard(spec)
		require.NoError(t, err, spec)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(&fakePurger{}, &fakeArchiver{})
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
