package permcache

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleInvalidation(t *testing.T) {
	reader := seeded()
	c, _, metrics := newTestCache(t, reader)
	ctx := context.Background()

	scheduler, err := ScheduleInvalidation(c, "0 3 * * *", quietLogger())
	require.NoError(t, err)

	entries := scheduler.Entries()
	require.Len(t, entries, 1)

	c.Load(ctx, "sales@example.com")
	entries[0].Job.Run()

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheInvalidations))
	c.Load(ctx, "sales@example.com")
	assert.Equal(t, int32(2), reader.calls.Load(), "invalidated snapshot is refetched")
}

func TestScheduleInvalidation_BadSpec(t *testing.T) {
	c, _, _ := newTestCache(t, seeded())

	_, err := ScheduleInvalidation(c, "whenever", nil)
	assert.Error(t, err)
}
