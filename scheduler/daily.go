package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// NextDaily resolves a wall-clock time of day, "15:04:05" in UTC, to the
// next matching instant strictly after now. A target earlier in the day than
// now rolls over to tomorrow.
func NextDaily(now time.Time, timeOfDay string) (time.Time, error) {
	tod, err := time.Parse("15:04:05", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: target time %q: %w", timeOfDay, err)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(fmt.Sprintf("%d %d %d * * *", tod.Second(), tod.Minute(), tod.Hour()))
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: compile target time %q: %w", timeOfDay, err)
	}
	return sched.Next(now.UTC()), nil
}
