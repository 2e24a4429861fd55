package services

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// CronEvaluator answers "is this schedule due". Expressions are parsed
// elsewhere-maintained syntax (standard 5-field cron); this is the only
// place the library surface is touched.
type CronEvaluator interface {
	Validate(expr string) error
	NextAfter(expr string, t time.Time) (time.Time, error)
	Matches(expr string, t time.Time) (bool, error)
}

type StandardCron struct{}

func (StandardCron) Validate(expr string) error {
	_, err := cron.ParseStandard(expr)
	return errors.Wrapf(err, "cron %q", expr)
}

func (StandardCron) NextAfter(expr string, t time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "cron %q", expr)
	}
	return sched.Next(t), nil
}

// Matches reports whether t itself satisfies the expression, at minute
// granularity.
func (StandardCron) Matches(expr string, t time.Time) (bool, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return false, errors.Wrapf(err, "cron %q", expr)
	}
	minute := t.Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)).Equal(minute), nil
}
