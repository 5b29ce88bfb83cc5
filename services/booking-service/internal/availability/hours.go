package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidHours = errors.New("invalid business hours")

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock parses "HH:MM" (24-hour). "24:00" is accepted as a closing time.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock %q: out of range", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the wall-clock instant c on the calendar day of day, in day's
// location. 24:00 is midnight of the following day. Built from date fields,
// not midnight plus an offset, so DST transition days keep their wall times.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	if c >= 24*60 {
		return time.Date(y, m, d+1, 0, 0, 0, 0, day.Location())
	}
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, day.Location())
}

type DayHours struct {
	IsOpen bool   `json:"isOpen"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// Span returns the parsed opening and closing clocks.
func (d DayHours) Span() (opening, closing Clock, err error) {
	opening, err = ParseClock(d.Start)
	if err != nil {
		return 0, 0, err
	}
	closing, err = ParseClock(d.End)
	if err != nil {
		return 0, 0, err
	}
	if opening >= closing {
		return 0, 0, fmt.Errorf("start %s not before end %s", d.Start, d.End)
	}
	return opening, closing, nil
}

// BusinessHours maps each weekday (0=Sunday..6=Saturday) to its hours.
type BusinessHours map[time.Weekday]DayHours

func (h BusinessHours) Validate() error {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		day, ok := h[wd]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrInvalidHours, wd)
		}
		if !day.IsOpen {
			continue
		}
		if _, _, err := day.Span(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidHours, wd, err)
		}
	}
	for wd := range h {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("%w: unknown weekday %d", ErrInvalidHours, int(wd))
		}
	}
	return nil
}

// open reports the day's span, or ok=false when the weekday is closed or unusable.
func (h BusinessHours) open(wd time.Weekday) (Clock, Clock, bool) {
	day, ok := h[wd]
	if !ok || !day.IsOpen {
		return 0, 0, false
	}
	opening, closing, err := day.Span()
	if err != nil {
		return 0, 0, false
	}
	return opening, closing, true
}

// GridBounds returns the earliest opening and latest closing across open weekdays.
func GridBounds(h BusinessHours) (opening, closing Clock, ok bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		o, c, isOpen := h.open(wd)
		if !isOpen {
			continue
		}
		if !ok || o < opening {
			opening = o
		}
		if !ok || c > closing {
			closing = c
		}
		ok = true
	}
	return opening, closing, ok
}

const dateLayout = "2006-01-02"

// DateKey formats day as YYYY-MM-DD in its own location.
func DateKey(day time.Time) string {
	return day.Format(dateLayout)
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc)
}

// Holidays is a set of YYYY-MM-DD dates on which the salon is closed.
type Holidays map[string]struct{}

func NewHolidays(dates ...string) Holidays {
	h := make(Holidays, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d != "" {
			h[d] = struct{}{}
		}
	}
	return h
}

func (h Holidays) Contains(date string) bool {
	_, ok := h[date]
	return ok
}
