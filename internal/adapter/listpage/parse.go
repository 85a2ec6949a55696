package listpage

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeLayouts are tried when a board configures none.
var DefaultTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006.01.02",
	"06.01.02",
	"06/01/02",
	"20060102",
	time.RFC3339,
}

var (
	errEmptyTime = errors.New("empty timestamp")

	relativeTime = regexp.MustCompile(`^(\d+)\s*(초|분|시간|일|seconds?|secs?|minutes?|mins?|hours?|hrs?|days?)\s*(전|ago)$`)
	countNumber  = regexp.MustCompile(`\d+(?:\.\d+)?`)

	timeOnlyLayouts = []string{"15:04:05", "15:04"}
	monthDayLayouts = []string{"01-02", "01.02", "01/02", "01.02."}
)

type timeParser struct {
	loc     *time.Location
	layouts []string
}

func newTimeParser(loc *time.Location, layouts []string) timeParser {
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}
	return timeParser{loc: loc, layouts: layouts}
}

// parse reads a board timestamp relative to now. Time-only values land on
// today. Month-day values land in the current year, or the previous one when
// that would put them in the future.
func (p timeParser) parse(raw string, now time.Time) (time.Time, error) {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return time.Time{}, errEmptyTime
	}
	now = now.In(p.loc)

	switch strings.ToLower(s) {
	case "방금", "방금 전", "just now", "now":
		return now, nil
	}
	if m := relativeTime.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("relative time %q: %w", raw, err)
		}
		return now.Add(-time.Duration(n) * relativeUnit(m[2])), nil
	}
	for _, layout := range p.layouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range timeOnlyLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, p.loc), nil
		}
	}
	for _, layout := range monthDayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, p.loc)
			if d.After(now) {
				d = d.AddDate(-1, 0, 0)
			}
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func relativeUnit(unit string) time.Duration {
	switch {
	case unit == "초" || strings.HasPrefix(unit, "sec"):
		return time.Second
	case unit == "분" || strings.HasPrefix(unit, "min"):
		return time.Minute
	case unit == "시간" || strings.HasPrefix(unit, "h"):
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// parseCount reads counters such as "1,234", "[12]", "1.2k" or "3만".
// Anything without digits counts as zero.
func parseCount(raw string) int {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""))
	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "만"):
		multiplier = 10_000
		s = strings.TrimSuffix(s, "만")
	}
	m := countNumber.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return int(math.Round(f * multiplier))
}
