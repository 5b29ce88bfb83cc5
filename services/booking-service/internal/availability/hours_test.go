package availability

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"24:00", 1440, false},
		{"24:30", 0, true},
		{"9:30", 0, true},
		{"12:60", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %d, got %d", tc.in, tc.want, got)
		}
		if got.String() != tc.in {
			t.Fatalf("%q: String() = %q", tc.in, got.String())
		}
	}
}

func TestBusinessHoursValidate(t *testing.T) {
	ok := weekdayHours("10:00", "19:00")
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid hours, got %v", err)
	}

	missing := weekdayHours("10:00", "19:00")
	delete(missing, time.Wednesday)
	if err := missing.Validate(); !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("expected ErrInvalidHours for missing weekday, got %v", err)
	}

	inverted := weekdayHours("10:00", "19:00")
	inverted[time.Monday] = DayHours{IsOpen: true, Start: "19:00", End: "10:00"}
	if err := inverted.Validate(); !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("expected ErrInvalidHours for inverted hours, got %v", err)
	}

	closedGarbage := weekdayHours("10:00", "19:00")
	closedGarbage[time.Sunday] = DayHours{IsOpen: false, Start: "nope"}
	if err := closedGarbage.Validate(); err != nil {
		t.Fatalf("closed days should not be checked, got %v", err)
	}
}

func TestBusinessHoursJSON(t *testing.T) {
	raw := `{"0":{"isOpen":false,"start":"","end":""},"1":{"isOpen":true,"start":"10:00","end":"19:00"}}`
	var h BusinessHours
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !h[time.Monday].IsOpen || h[time.Monday].End != "19:00" {
		t.Fatalf("unexpected monday: %+v", h[time.Monday])
	}
	if h[time.Sunday].IsOpen {
		t.Fatal("expected sunday closed")
	}
}

func TestGridBounds(t *testing.T) {
	h := weekdayHours("10:00", "19:00")
	h[time.Tuesday] = DayHours{IsOpen: true, Start: "09:00", End: "17:00"}
	h[time.Saturday] = DayHours{IsOpen: true, Start: "11:00", End: "20:30"}
	h[time.Sunday] = DayHours{IsOpen: false, Start: "06:00", End: "23:00"}

	opening, closing, ok := GridBounds(h)
	if !ok {
		t.Fatal("expected bounds")
	}
	if opening.String() != "09:00" || closing.String() != "20:30" {
		t.Fatalf("expected 09:00-20:30, got %s-%s", opening, closing)
	}

	if _, _, ok := GridBounds(BusinessHours{}); ok {
		t.Fatal("expected no bounds when nothing is open")
	}
}
