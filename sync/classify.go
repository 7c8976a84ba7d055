package sync

import (
	"strings"
	"time"
)

// sourceKeywords maps normalized substrings to channels; checked in order
// so more specific keywords win.
var sourceKeywords = []struct {
	keyword string
	channel SourceChannel
}{
	{"bookingcom", SourceBookingCom},
	{"airbnb", SourceAirbnb},
	{"expedia", SourceExpedia},
	{"vrbo", SourceVrbo},
	{"homeaway", SourceVrbo},
	{"manual", SourceManual},
	{"direct", SourceDirect},
}

// normalizeSourceText lowercases and strips everything but letters and
// digits, so "Booking.com", "BOOKINGCOM" and "booking com" all compare
// equal.
func normalizeSourceText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ClassifySource derives the origin channel from the record's declared
// source fields, the free-text description, and the guest email domain.
// When nothing matches it returns SourceUnknown plus the original free
// text for fallback display.
func ClassifySource(rec BookingRecord) (SourceChannel, string) {
	candidates := []string{rec.SourceRaw, rec.SourceText, emailDomain(rec.GuestEmail)}

	for _, candidate := range candidates {
		normalized := normalizeSourceText(candidate)
		if normalized == "" {
			continue
		}
		for _, entry := range sourceKeywords {
			if strings.Contains(normalized, entry.keyword) {
				return entry.channel, ""
			}
		}
	}

	fallback := rec.SourceText
	if fallback == "" {
		fallback = rec.SourceRaw
	}
	return SourceUnknown, fallback
}

func emailDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[at+1:]
	}
	return ""
}

// ClassifyStatus maps a raw status string to a BookingStatus. Unknown
// strings default to Pending so nothing silently looks done.
func ClassifyStatus(raw string) BookingStatus {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "cancel"):
		return StatusCancelled
	case strings.Contains(s, "confirmed"), strings.Contains(s, "booked"):
		return StatusConfirmed
	case strings.Contains(s, "paid"):
		return StatusPaid
	default:
		return StatusPending
	}
}

// ClassifyLifecycle derives the stay phase from the check-in/check-out
// dates versus today's UTC calendar date. A cancelled booking is always
// Completed: a cancelled stay is never "in house". Date strings compare
// lexicographically since they are plain "YYYY-MM-DD".
func ClassifyLifecycle(rec BookingRecord, status BookingStatus, now time.Time) StayLifecycle {
	if status == StatusCancelled {
		return LifecycleCompleted
	}

	today := now.UTC().Format("2006-01-02")

	switch {
	case rec.CheckIn != "" && rec.CheckOut != "":
		if today < rec.CheckIn {
			return LifecycleUpcoming
		}
		if today < rec.CheckOut {
			return LifecycleInHouse
		}
		return LifecycleCompleted
	case rec.CheckIn != "":
		if today < rec.CheckIn {
			return LifecycleUpcoming
		}
		return LifecycleInHouse
	case rec.CheckOut != "":
		if today < rec.CheckOut {
			return LifecycleInHouse
		}
		return LifecycleCompleted
	default:
		return LifecycleUpcoming
	}
}
