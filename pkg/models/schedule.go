package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when a cron expression cannot be parsed.
var ErrInvalidSchedule = errors.New("invalid schedule")

// InvalidScheduleError carries the definition whose schedule failed to parse.
type InvalidScheduleError struct {
	DefinitionID string
	Expression   string
	Err          error
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule %q for definition %s: %v", e.Expression, e.DefinitionID, e.Err)
}

func (e *InvalidScheduleError) Unwrap() error {
	return e.Err
}

func (e *InvalidScheduleError) Is(target error) bool {
	return target == ErrInvalidSchedule
}

// Standard 5-field cron: minute hour day-of-month month day-of-week.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a standard 5-field cron expression.
func ParseSchedule(expression string) (cron.Schedule, error) {
	schedule, err := scheduleParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return schedule, nil
}

// NextFireTime returns the definition's next fire time strictly after reference.
// Schedules are evaluated in UTC whatever the zone of reference.
func (d *Definition) NextFireTime(reference time.Time) (time.Time, error) {
	if d.Schedule == nil {
		return time.Time{}, &InvalidScheduleError{DefinitionID: d.ID, Err: ErrInvalidSchedule}
	}

	schedule, err := ParseSchedule(*d.Schedule)
	if err != nil {
		return time.Time{}, &InvalidScheduleError{DefinitionID: d.ID, Expression: *d.Schedule, Err: err}
	}

	return schedule.Next(reference.UTC()), nil
}
