package market

import (
	"testing"
	"time"
)

func TestCalendarTradingDays(t *testing.T) {
	cal := NewCalendar([]string{"2024-10-01"})

	tests := []struct {
		date string
		want bool
	}{
		{"2024-06-14", true},  // Friday
		{"2024-06-15", false}, // Saturday
		{"2024-06-16", false}, // Sunday
		{"2024-06-17", true},  // Monday
		{"2024-10-01", false}, // holiday
	}
	for _, tt := range tests {
		d, _ := time.Parse("2006-01-02", tt.date)
		if got := cal.IsTradingDay(d); got != tt.want {
			t.Errorf("IsTradingDay(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestCalendarSessions(t *testing.T) {
	cal := NewCalendar(nil)
	day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC) // Friday

	tests := []struct {
		hour, min int
		want      bool
	}{
		{9, 29, false},
		{9, 30, true},
		{11, 30, true},
		{11, 31, false},
		{12, 30, false},
		{13, 0, true},
		{15, 0, true},
		{15, 1, false},
	}
	for _, tt := range tests {
		ts := day.Add(time.Duration(tt.hour)*time.Hour + time.Duration(tt.min)*time.Minute)
		if got := cal.InSession(ts); got != tt.want {
			t.Errorf("InSession(%02d:%02d) = %v, want %v", tt.hour, tt.min, got, tt.want)
		}
	}
}

func TestCalendarWithinTradingHoursDailyBars(t *testing.T) {
	cal := NewCalendar(nil)

	// Midnight timestamps (daily bars) need only a trading day.
	friday := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	if !cal.WithinTradingHours(friday) {
		t.Error("daily bar on a trading day should be within trading hours")
	}
	saturday := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	if cal.WithinTradingHours(saturday) {
		t.Error("daily bar on a weekend should be outside trading hours")
	}

	// Intraday timestamps must also be in session.
	lunch := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	if cal.WithinTradingHours(lunch) {
		t.Error("lunch break should be outside trading hours")
	}
}

func TestCalendarNextTradingDay(t *testing.T) {
	cal := NewCalendar([]string{"2024-06-17"}) // Monday holiday

	friday := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	got := cal.NextTradingDay(friday)
	want := time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC) // Tuesday
	if !got.Equal(want) {
		t.Errorf("NextTradingDay = %s, want %s", got, want)
	}
}
