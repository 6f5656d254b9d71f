package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// getNextCronTime returns the next instant strictly after now at which
// expr matches, minute resolution. robfig's standard parser ORs
// day-of-month and day-of-week when both are restricted (neither is
// "*"), matching classic cron dialects; this kernel accepts that
// behavior as-is rather than special-casing the two fields.
func getNextCronTime(expr string, now time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
	}
	return schedule.Next(now), nil
}
