package reminder

import (
	"fmt"
	"strconv"
	"strings"
)

// Recurrence is the compiled trigger of a reminder: a five-field cron
// expression "minute hour * * dow" evaluated in Timezone.
type Recurrence struct {
	Expr     string
	Timezone string
}

// Compile derives the recurrence of r from its TimeOfDay, DaysOfWeek and
// Timezone. Input is expected to be validated already (see ParseTimeOfDay,
// ParseDays); the error only guards against corrupt stored records.
//
// Day values are copied verbatim into the day-of-week field. An empty set
// compiles to "*".
func Compile(r Reminder) (Recurrence, error) {
	hour, minute, err := splitHHMM(r.TimeOfDay)
	if err != nil {
		return Recurrence{}, err
	}
	dow := "*"
	if len(r.DaysOfWeek) > 0 {
		parts := make([]string, len(r.DaysOfWeek))
		for i, d := range r.DaysOfWeek {
			parts[i] = strconv.Itoa(d)
		}
		dow = strings.Join(parts, ",")
	}
	tz := strings.TrimSpace(r.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	return Recurrence{
		Expr:     fmt.Sprintf("%d %d * * %s", minute, hour, dow),
		Timezone: tz,
	}, nil
}

// Spec renders the recurrence for robfig/cron's standard parser:
// "CRON_TZ=<tz> <expr>". Day 7 is rewritten to 0 because that parser only
// accepts 0-6 with Sunday as 0; 1-6 keep their Monday-Saturday meaning.
func (rc Recurrence) Spec() string {
	fields := strings.Fields(rc.Expr)
	if len(fields) == 5 && fields[4] != "*" {
		days := strings.Split(fields[4], ",")
		for i, d := range days {
			if d == "7" {
				days[i] = "0"
			}
		}
		fields[4] = strings.Join(days, ",")
	}
	return "CRON_TZ=" + rc.Timezone + " " + strings.Join(fields, " ")
}

func (rc Recurrence) String() string { return rc.Expr + " (" + rc.Timezone + ")" }

func splitHHMM(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
