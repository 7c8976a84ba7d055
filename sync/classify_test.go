package sync

import (
	"testing"
	"time"
)

func TestClassifySource(t *testing.T) {
	tests := []struct {
		name     string
		rec      BookingRecord
		expected SourceChannel
	}{
		{"declared booking.com", BookingRecord{SourceRaw: "Booking.com"}, SourceBookingCom},
		{"case insensitive", BookingRecord{SourceRaw: "BOOKINGCOM"}, SourceBookingCom},
		{"punctuation insensitive", BookingRecord{SourceRaw: "booking com"}, SourceBookingCom},
		{"airbnb", BookingRecord{SourceRaw: "AirBnB"}, SourceAirbnb},
		{"expedia", BookingRecord{SourceRaw: "expedia"}, SourceExpedia},
		{"vrbo", BookingRecord{SourceRaw: "VRBO"}, SourceVrbo},
		{"homeaway maps to vrbo", BookingRecord{SourceRaw: "HomeAway"}, SourceVrbo},
		{"manual", BookingRecord{SourceRaw: "Manual entry"}, SourceManual},
		{"direct", BookingRecord{SourceRaw: "direct"}, SourceDirect},
		{"free text fallback", BookingRecord{SourceText: "Imported from airbnb feed"}, SourceAirbnb},
		{"email domain fallback", BookingRecord{GuestEmail: "jane@guest.booking.com"}, SourceBookingCom},
		{"no match", BookingRecord{SourceRaw: "telephone"}, SourceUnknown},
		{"empty", BookingRecord{}, SourceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := ClassifySource(tt.rec)
			if got != tt.expected {
				t.Errorf("ClassifySource = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestClassifySourceFallbackText(t *testing.T) {
	rec := BookingRecord{SourceRaw: "phone", SourceText: "Telephone reservation"}
	channel, fallback := ClassifySource(rec)
	if channel != SourceUnknown {
		t.Fatalf("channel = %v, want Unknown", channel)
	}
	if fallback != "Telephone reservation" {
		t.Errorf("fallback = %q, want the original free text", fallback)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		raw      string
		expected BookingStatus
	}{
		{"Booked", StatusConfirmed},
		{"confirmed", StatusConfirmed},
		{"Paid", StatusPaid},
		{"pending", StatusPending},
		{"Cancelled", StatusCancelled},
		{"canceled", StatusCancelled},
		{"CancelledByGuest", StatusCancelled},
		{"", StatusPending},
		{"something else", StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ClassifyStatus(tt.raw); got != tt.expected {
				t.Errorf("ClassifyStatus(%q) = %q, want %q", tt.raw, got, tt.expected)
			}
		})
	}
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

// TestLifecycleSweep verifies the monotonic Upcoming → InHouse → Completed
// progression as today moves across the stay window.
func TestLifecycleSweep(t *testing.T) {
	rec := BookingRecord{CheckIn: "2026-06-10", CheckOut: "2026-06-14"}

	tests := []struct {
		today    string
		expected StayLifecycle
	}{
		{"2026-06-01", LifecycleUpcoming},
		{"2026-06-09", LifecycleUpcoming},
		{"2026-06-10", LifecycleInHouse},
		{"2026-06-13", LifecycleInHouse},
		{"2026-06-14", LifecycleCompleted},
		{"2026-07-01", LifecycleCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.today, func(t *testing.T) {
			got := ClassifyLifecycle(rec, StatusConfirmed, day(tt.today))
			if got != tt.expected {
				t.Errorf("lifecycle on %s = %q, want %q", tt.today, got, tt.expected)
			}
		})
	}
}

func TestLifecycleCancelledAlwaysCompleted(t *testing.T) {
	rec := BookingRecord{CheckIn: "2026-06-10", CheckOut: "2026-06-14"}

	for _, today := range []string{"2026-06-01", "2026-06-12", "2026-07-01"} {
		if got := ClassifyLifecycle(rec, StatusCancelled, day(today)); got != LifecycleCompleted {
			t.Errorf("cancelled booking on %s = %q, want Completed", today, got)
		}
	}
}

func TestLifecycleSingleDateFallback(t *testing.T) {
	tests := []struct {
		name     string
		rec      BookingRecord
		today    string
		expected StayLifecycle
	}{
		{"only check-in, before", BookingRecord{CheckIn: "2026-06-10"}, "2026-06-01", LifecycleUpcoming},
		{"only check-in, after", BookingRecord{CheckIn: "2026-06-10"}, "2026-06-12", LifecycleInHouse},
		{"only check-out, before", BookingRecord{CheckOut: "2026-06-14"}, "2026-06-12", LifecycleInHouse},
		{"only check-out, after", BookingRecord{CheckOut: "2026-06-14"}, "2026-06-20", LifecycleCompleted},
		{"no dates", BookingRecord{}, "2026-06-12", LifecycleUpcoming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyLifecycle(tt.rec, StatusConfirmed, day(tt.today))
			if got != tt.expected {
				t.Errorf("lifecycle = %q, want %q", got, tt.expected)
			}
		})
	}
}
