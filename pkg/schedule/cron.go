// Package schedule implements timezone-correct cron arithmetic. All
// computation advances the cron expression in the schedule's local wall-clock
// time and converts to UTC only at the boundaries, so a "9am daily" schedule
// keeps firing at 9am local across daylight-saving shifts.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/autoflow-hq/core/pkg/pipeline"
)

// DefaultMaxOccurrences caps range enumeration against pathological
// expressions or unbounded windows. A defensive bound, not a product limit.
const DefaultMaxOccurrences = 1000

// Expressions are standard 5-field cron: minute hour day-of-month month
// day-of-week.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Engine computes firing instants for cron expressions bound to IANA
// timezones. The zero value is not usable; construct with NewEngine.
type Engine struct {
	maxOccurrences int
}

// NewEngine creates an engine. A non-positive maxOccurrences selects the
// default cap.
func NewEngine(maxOccurrences int) *Engine {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Engine{maxOccurrences: maxOccurrences}
}

// Parse validates a 5-field cron expression and returns its schedule.
func Parse(expr string) (cron.Schedule, error) {
	if strings.HasPrefix(strings.TrimSpace(expr), "@") {
		return nil, &pipeline.ValidationError{Message: fmt.Sprintf("invalid cron expression %q: only 5-field expressions are supported", expr)}
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, &pipeline.ValidationError{Message: fmt.Sprintf("invalid cron expression %q: %v", expr, err)}
	}
	return sched, nil
}

// LoadLocation resolves an IANA timezone name. An empty name means UTC; an
// unresolvable name is a ValidationError, never a silent UTC fallback.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, &pipeline.ValidationError{Message: fmt.Sprintf("unknown timezone %q", timezone)}
	}
	return loc, nil
}

// Validate checks both the cron expression and the timezone without
// computing anything.
func (e *Engine) Validate(expr, timezone string) error {
	if _, err := Parse(expr); err != nil {
		return err
	}
	if _, err := LoadLocation(timezone); err != nil {
		return err
	}
	return nil
}

// NextRun returns the first UTC instant strictly after base at which the
// expression fires in the given timezone.
func (e *Engine) NextRun(expr, timezone string, base time.Time) (time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}

	local := base.In(loc)
	return sched.Next(local).UTC(), nil
}

// OccurrencesInRange returns every UTC instant in [start, end] at which the
// expression fires in the given timezone, in order. Enumeration stops at the
// engine's occurrence cap.
func (e *Engine) OccurrencesInRange(expr, timezone string, start, end time.Time) ([]time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}

	startLocal := start.In(loc)
	endLocal := end.In(loc)
	if endLocal.Before(startLocal) {
		return nil, nil
	}

	var occurrences []time.Time

	// Seed one tick before the window so an occurrence exactly at start is
	// included; Schedule.Next is strictly-after.
	t := startLocal.Add(-time.Second)
	for {
		t = sched.Next(t)
		if t.IsZero() || t.After(endLocal) {
			break
		}
		occurrences = append(occurrences, t.UTC())
		if len(occurrences) >= e.maxOccurrences {
			break
		}
	}

	return occurrences, nil
}
