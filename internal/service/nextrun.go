package service

import (
	"strconv"
	"strings"
	"time"

	"env_automation/internal/models"
)

const day = 24 * time.Hour

var recurrenceStep = map[string]time.Duration{
	models.FrequencyDaily:   day,
	models.FrequencyWeekly:  7 * day,
	models.FrequencyMonthly: 30 * day,
}

// NextRun computes the next due time of s relative to now. A nil result means
// the schedule is exhausted or invalid and must be retired.
func (j *JobScheduler) NextRun(s models.Schedule, now time.Time) *time.Time {
	now = now.UTC()
	start := utcPtr(s.StartTime, s.Timezone)
	end := utcPtr(s.EndTime, s.Timezone)
	last := utcPtr(s.LastRun, s.Timezone)

	var next time.Time
	switch s.Kind {
	case models.KindOneOff:
		if start == nil || !start.After(now) {
			return nil
		}
		next = *start

	case models.KindInterval:
		if s.IntervalSeconds <= 0 {
			return nil
		}
		base := now
		if last != nil {
			base = *last
		} else if start != nil {
			base = *start
		}
		next = base.Add(time.Duration(s.IntervalSeconds) * time.Second)
		if end != nil && next.After(*end) {
			return nil
		}

	case models.KindCron:
		spec, ok := parseCron(s.CronExpression)
		if !ok {
			return nil
		}
		var exact bool
		next, exact = spec.next(now)
		if !exact {
			j.log.Warnw("cron_expression_approximated", "schedule_id", s.ID,
				"expression", s.CronExpression, "next_run", next)
		}

	case models.KindRecurring:
		step, ok := recurrenceStep[strings.ToLower(s.Frequency)]
		if !ok {
			return nil
		}
		var base time.Time
		switch {
		case last != nil:
			base = *last
		case start != nil:
			base = *start
		default:
			return nil
		}
		next = base.Add(step)
		if end != nil && next.After(*end) {
			return nil
		}

	case models.KindStatic:
		if start == nil {
			return nil
		}
		next = time.Date(now.Year(), now.Month(), now.Day(),
			start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), time.UTC)
		if !next.After(now) {
			next = next.Add(day)
		}

	default:
		return nil
	}
	return &next
}

func utcPtr(t *time.Time, tz string) *time.Time {
	if t == nil {
		return nil
	}
	u := toUTC(*t, tz)
	return &u
}

// cronSpec is a parsed five-field expression. Only three shapes are computed
// exactly: "* * * * *", "M * * * *" and "M H * * *". Every other valid
// expression is approximated as one hour from now.
type cronSpec struct {
	minute, hour int // -1 for wildcard
	exactShape   bool
}

var cronRanges = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 7}}

func parseCron(expr string) (cronSpec, bool) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSpec{}, false
	}
	for i, f := range fields {
		if !validCronField(f, cronRanges[i][0], cronRanges[i][1]) {
			return cronSpec{}, false
		}
	}

	spec := cronSpec{minute: -1, hour: -1}
	restWild := fields[2] == "*" && fields[3] == "*" && fields[4] == "*"
	minute, minOK := plainNumber(fields[0])
	hour, hourOK := plainNumber(fields[1])
	switch {
	case fields[0] == "*" && fields[1] == "*" && restWild:
		spec.exactShape = true
	case minOK && fields[1] == "*" && restWild:
		spec.minute, spec.exactShape = minute, true
	case minOK && hourOK && restWild:
		spec.minute, spec.hour, spec.exactShape = minute, hour, true
	}
	return spec, true
}

// next returns the first matching time strictly after now, and whether it is exact.
func (c cronSpec) next(now time.Time) (time.Time, bool) {
	if !c.exactShape {
		return now.Add(time.Hour), false
	}
	switch {
	case c.minute < 0:
		return now.Truncate(time.Minute).Add(time.Minute), true
	case c.hour < 0:
		t := now.Truncate(time.Hour).Add(time.Duration(c.minute) * time.Minute)
		if !t.After(now) {
			t = t.Add(time.Hour)
		}
		return t, true
	default:
		t := time.Date(now.Year(), now.Month(), now.Day(), c.hour, c.minute, 0, 0, time.UTC)
		if !t.After(now) {
			t = t.Add(day)
		}
		return t, true
	}
}

func plainNumber(f string) (int, bool) {
	n, err := strconv.Atoi(f)
	return n, err == nil
}

// validCronField accepts "*", numbers, ranges, lists and steps within [lo, hi].
func validCronField(f string, lo, hi int) bool {
	for _, part := range strings.Split(f, ",") {
		base, step, hasStep := strings.Cut(part, "/")
		if hasStep {
			n, err := strconv.Atoi(step)
			if err != nil || n <= 0 {
				return false
			}
		}
		if base == "*" {
			continue
		}
		from, to, isRange := strings.Cut(base, "-")
		a, err := strconv.Atoi(from)
		if err != nil || a < lo || a > hi {
			return false
		}
		if isRange {
			b, err := strconv.Atoi(to)
			if err != nil || b < a || b > hi {
				return false
			}
		}
	}
	return true
}
