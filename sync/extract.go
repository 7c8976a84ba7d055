package sync

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// rawPayloadCap bounds the serialized payload snapshot kept on the board.
const rawPayloadCap = 50000

// Extract builds a canonical BookingRecord from one raw payload. It never
// fails: every field degrades independently to absent/empty/zero when the
// source value is missing or malformed. props is an optional property-id →
// name index used as a last resort for unit naming.
func Extract(doc Document, props map[string]string) BookingRecord {
	var rec BookingRecord

	rec.ExternalID = firstString(doc, "id", "booking_id", "code")

	rec.CheckIn = parseDate(firstValue(doc, "arrival", "check_in", "date_arrival"))
	rec.CheckOut = parseDate(firstValue(doc, "departure", "check_out", "date_departure"))
	rec.Nights = nightsBetween(rec.CheckIn, rec.CheckOut)

	extractGuest(doc, &rec)

	rec.Currency = firstString(doc, "currency_code", "currency")
	rec.TotalAmount = moneyField(doc, "total_amount", "amount", "total")
	rec.AmountPaid = moneyField(doc, "amount_paid", "paid")
	rec.AmountDue = moneyField(doc, "amount_due", "balance_due", "due")

	rec.StatusRaw = firstString(doc, "status", "booking_status")
	rec.SourceRaw = firstString(doc, "source", "channel", "origin")
	rec.SourceText = firstString(doc, "source_text", "source_description")
	if rec.SourceText == "" {
		rec.SourceText = rec.SourceRaw
	}

	rec.Language = firstString(doc, "language", "guest_language")
	rec.ThreadUID = firstString(doc, "thread_uid")
	rec.KeyCode = firstString(doc, "key_code")
	rec.PropertyID = firstString(doc, "property_id")

	rec.CreatedAt = parseDate(firstValue(doc, "created_at", "date_created"))
	rec.UpdatedAt = parseDate(firstValue(doc, "updated_at", "date_modified"))
	rec.CanceledAt = parseDate(firstValue(doc, "canceled_at", "cancelled_at", "date_canceled"))

	roomName, roomID := extractRooms(doc, &rec)

	explicit := firstString(doc, "unit_name", "rental_name", "property_name")
	if explicit == "" {
		explicit = roomName
	}
	rec.UnitName = ResolveUnitName(explicit, rec.SourceText, rec.PropertyID, roomID, props)

	if raw, err := json.Marshal(doc); err == nil {
		if len(raw) > rawPayloadCap {
			raw = raw[:rawPayloadCap]
		}
		rec.RawJSON = string(raw)
	}

	return rec
}

// extractGuest fills the guest fields from the `guest` sub-object (falling
// back to top-level fields some payloads use).
func extractGuest(doc Document, rec *BookingRecord) {
	guest, _ := doc["guest"].(map[string]interface{})
	if guest == nil {
		guest = doc
	}

	rec.GuestEmail = firstString(guest, "email")
	rec.GuestPhone = firstString(guest, "phone", "phone_number")
	rec.PhoneCountry = strings.ToUpper(firstString(guest, "country_code", "country"))

	first := firstString(guest, "first_name")
	last := firstString(guest, "last_name")
	full := firstString(guest, "name", "full_name", "guest_name")

	switch {
	case first != "" || last != "":
		rec.GuestFirstName = first
		rec.GuestLastName = last
		rec.GuestName = strings.TrimSpace(first + " " + last)
	case full != "":
		rec.GuestName = full
		rec.GuestFirstName, rec.GuestLastName = splitFullName(full)
	}
}

// splitFullName splits a combined name on whitespace: a single token is a
// first name only; otherwise the last token is the last name and the rest
// joined is the first name.
func splitFullName(full string) (first, last string) {
	tokens := strings.Fields(full)
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return tokens[0], ""
	default:
		return strings.Join(tokens[:len(tokens)-1], " "), tokens[len(tokens)-1]
	}
}

// extractRooms reads occupancy from the first element of the rooms list.
// The total people count defaults to the sum of the sub-counts when no
// explicit total is present. Returns the room's name and id for unit
// naming.
func extractRooms(doc Document, rec *BookingRecord) (name, id string) {
	rooms, _ := doc["rooms"].([]interface{})
	if len(rooms) == 0 {
		return "", ""
	}
	room, _ := rooms[0].(map[string]interface{})
	if room == nil {
		return "", ""
	}

	rec.Adults = intField(room, "adults")
	rec.Children = intField(room, "children")
	rec.Infants = intField(room, "infants")
	rec.Pets = intField(room, "pets")
	rec.People = intField(room, "people", "guests")

	if rec.People == nil {
		sum := 0
		present := false
		for _, n := range []*int{rec.Adults, rec.Children, rec.Infants} {
			if n != nil {
				sum += *n
				present = true
			}
		}
		if present {
			rec.People = &sum
		}
	}

	if rec.KeyCode == "" {
		rec.KeyCode = firstString(room, "key_code")
	}

	return firstString(room, "name", "room_type_name"), firstString(room, "room_type_id", "id")
}

// dateLayouts are tried in order; all inputs collapse to a plain calendar
// date with time-of-day and timezone dropped.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999Z07:00",
}

// parseDate normalizes a date-like value to "YYYY-MM-DD". Accepts ISO
// strings with or without time-of-day/timezone, and nested objects holding
// the value under a `time` or `date` key. Anything else yields "".
func parseDate(v interface{}) string {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return ""
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format("2006-01-02")
			}
		}
		return ""
	case map[string]interface{}:
		for _, key := range []string{"time", "date"} {
			if nested, ok := val[key]; ok {
				if d := parseDate(nested); d != "" {
					return d
				}
			}
		}
		return ""
	default:
		return ""
	}
}

// nightsBetween returns the stay length in days, absent unless both dates
// are present and check-out is not before check-in (never negative).
func nightsBetween(checkIn, checkOut string) *int {
	if checkIn == "" || checkOut == "" {
		return nil
	}
	ci, err := time.Parse("2006-01-02", checkIn)
	if err != nil {
		return nil
	}
	co, err := time.Parse("2006-01-02", checkOut)
	if err != nil {
		return nil
	}
	if co.Before(ci) {
		return nil
	}
	nights := int(co.Sub(ci).Hours() / 24)
	return &nights
}

// firstValue returns the first present value among keys, nil if none.
func firstValue(doc Document, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := doc[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstString returns the first non-empty string-coerced value among keys.
func firstString(doc Document, keys ...string) string {
	for _, key := range keys {
		v, ok := doc[key]
		if !ok || v == nil {
			continue
		}
		if s := coerceString(v); s != "" {
			return s
		}
	}
	return ""
}

func coerceString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		// JSON numbers decode as float64; ids must not pick up an exponent
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// moneyField coerces the first present monetary value to a float64,
// defaulting to 0.0 when absent or unparseable.
func moneyField(doc Document, keys ...string) float64 {
	for _, key := range keys {
		v, ok := doc[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			return val
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return f
			}
		}
	}
	return 0.0
}

// intField coerces the first present value to an int, nil when absent or
// unparseable.
func intField(doc Document, keys ...string) *int {
	for _, key := range keys {
		v, ok := doc[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			n := int(val)
			return &n
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				return &n
			}
		}
	}
	return nil
}

// itemName builds the display name of a board item. The booking id is
// appended for disambiguation; lookup still goes through the Booking ID
// column.
func itemName(rec BookingRecord) string {
	parts := make([]string, 0, 4)
	if rec.GuestName != "" {
		parts = append(parts, rec.GuestName)
	}
	if rec.UnitName != "" {
		parts = append(parts, rec.UnitName)
	}
	if rec.CheckIn != "" {
		parts = append(parts, rec.CheckIn)
	}
	parts = append(parts, rec.ExternalID)
	return strings.Join(parts, " — ")
}
