// Package dateparse turns admin date input into class dates (YYYY-MM-DD).
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/marcus/yoga/internal/models"
)

var (
	natural = newNatural()
	isoLike = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

func newNatural() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDate parses a date input string relative to the current time.
//
// Supported formats:
//   - Exact dates: "2026-03-01", "01/03/2026" (day first)
//   - Relative days: "+7d"
//   - Relative weeks: "+2w"
//   - Keywords: "today", "tomorrow", "next-week"
//   - Day names: "monday", "wed" (next occurrence)
//   - Anything else English, e.g. "next friday" or "in 3 days"
func ParseDate(input string) (string, error) {
	return ParseDateFrom(input, time.Now())
}

// ParseDateFrom parses input relative to now, so tests can pin the clock
func ParseDateFrom(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return "", fmt.Errorf("empty date input")
	}

	if isoLike.MatchString(input) {
		t, err := time.Parse(models.DateLayout, input)
		if err != nil {
			return "", fmt.Errorf("invalid date %q", input)
		}
		return formatDate(t), nil
	}
	if t, err := time.Parse("02/01/2006", input); err == nil {
		return formatDate(t), nil
	}

	switch input {
	case "today":
		return formatDate(now), nil
	case "tomorrow":
		return formatDate(now.AddDate(0, 0, 1)), nil
	case "next-week":
		return formatDate(Next(time.Monday, now)), nil
	}

	// +Nd, +Nw
	if strings.HasPrefix(input, "+") && len(input) >= 3 {
		suffix := input[len(input)-1]
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err == nil && n >= 0 {
			switch suffix {
			case 'd':
				return formatDate(now.AddDate(0, 0, n)), nil
			case 'w':
				return formatDate(now.AddDate(0, 0, n*7)), nil
			default:
				return "", fmt.Errorf("unknown relative unit %q in %q (use d or w)", string(suffix), input)
			}
		}
	}

	if day, ok := Weekday(input); ok {
		return formatDate(Next(day, now)), nil
	}

	r, err := natural.Parse(input, now)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", input, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized date format: %q", input)
	}
	return formatDate(r.Time), nil
}

// Weekday maps a day name or its three-letter prefix to a time.Weekday
func Weekday(name string) (time.Weekday, bool) {
	day := models.NormalizeDay(name)
	for i := time.Sunday; i <= time.Saturday; i++ {
		if i.String() == day {
			return i, true
		}
	}
	return time.Sunday, false
}

// Next returns the next date strictly after now that falls on day
func Next(day time.Weekday, now time.Time) time.Time {
	ahead := (int(day) - int(now.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return now.AddDate(0, 0, ahead)
}

// NextOn returns the next date on the weekday of a course, e.g. "Wednesday".
// Today counts when it already is that day.
func NextOn(dayOfWeek string, now time.Time) (string, error) {
	day, ok := Weekday(dayOfWeek)
	if !ok {
		return "", fmt.Errorf("invalid day of week: %q", dayOfWeek)
	}
	if now.Weekday() == day {
		return formatDate(now), nil
	}
	return formatDate(Next(day, now)), nil
}

func formatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}
