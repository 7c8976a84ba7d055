// Package sync keeps the Lodgify booking feed mirrored into a Monday.com
// board: one board item per booking, idempotent by booking id.
package sync

// Document is a raw booking payload as decoded from JSON. Shapes vary by
// source and API revision, so every accessor tolerates missing or
// differently-typed fields.
type Document = map[string]interface{}

// SourceChannel is the classified origin of a booking.
type SourceChannel int

const (
	SourceUnknown SourceChannel = iota
	SourceBookingCom
	SourceAirbnb
	SourceExpedia
	SourceVrbo
	SourceDirect
	SourceManual
)

// Label returns the board dropdown label for the channel, empty for
// SourceUnknown.
func (c SourceChannel) Label() string {
	switch c {
	case SourceBookingCom:
		return "Booking.com"
	case SourceAirbnb:
		return "Airbnb"
	case SourceExpedia:
		return "Expedia"
	case SourceVrbo:
		return "Vrbo"
	case SourceDirect:
		return "Direct"
	case SourceManual:
		return "Manual"
	default:
		return ""
	}
}

// DefaultSourceLabels seeds the Source dropdown when a board has no labels
// registered yet.
var DefaultSourceLabels = []string{"Booking.com", "Airbnb", "Expedia", "Vrbo", "Manual", "Direct"}

// BookingStatus is the classified payment/confirmation state.
type BookingStatus string

const (
	StatusConfirmed BookingStatus = "Confirmed"
	StatusPaid      BookingStatus = "Paid"
	StatusPending   BookingStatus = "Pending"
	StatusCancelled BookingStatus = "Cancelled"
)

// StayLifecycle is the booking's temporal phase relative to today.
type StayLifecycle string

const (
	LifecycleUpcoming  StayLifecycle = "Upcoming"
	LifecycleInHouse   StayLifecycle = "In house"
	LifecycleCompleted StayLifecycle = "Completed"
)

// BookingRecord is the canonical form of one booking, built fresh per sync
// attempt. Dates are plain "YYYY-MM-DD" strings, empty when absent.
// Optional counts are nil when the source did not provide them; zero is a
// real value and round-trips.
type BookingRecord struct {
	ExternalID string

	GuestName      string
	GuestFirstName string
	GuestLastName  string
	GuestEmail     string
	GuestPhone     string
	PhoneCountry   string

	UnitName   string
	PropertyID string

	CheckIn  string
	CheckOut string
	Nights   *int

	Currency    string
	TotalAmount float64
	AmountPaid  float64
	AmountDue   float64

	StatusRaw  string
	SourceRaw  string
	SourceText string

	Language  string
	ThreadUID string
	KeyCode   string

	Adults   *int
	Children *int
	Infants  *int
	Pets     *int
	People   *int

	CreatedAt  string
	UpdatedAt  string
	CanceledAt string

	// RawJSON is the serialized source document, truncated to
	// rawPayloadCap bytes, kept on the board for auditability.
	RawJSON string
}
