package permcache

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/opsboard/pkg/observability"
)

// ScheduleInvalidation returns a cron scheduler that invalidates the whole
// cache on spec, a standard five field cron expression. Snapshots stay
// servable until they are refetched. The caller starts and stops the
// scheduler.
func ScheduleInvalidation(c *Cache, spec string, logger logrus.FieldLogger) (*cron.Cron, error) {
	logger = observability.OrStandard(logger)

	scheduler := cron.New()
	_, err := scheduler.AddFunc(spec, func() {
		defer observability.RecoverPanic(logger, "scheduled cache invalidation")

		entries := c.Len()
		c.Invalidate()
		logger.WithField("entries", entries).Info("Scheduled permission cache invalidation")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cache invalidation schedule %q: %w", spec, err)
	}
	return scheduler, nil
}
