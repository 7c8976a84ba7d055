package sync

import (
	"strconv"
	"time"

	"github.com/heavenly/booksync/monday"
)

// mapColumnValues converts a canonical record plus its classifications
// into a column-id → value map shaped per each target column's type
// contract. Pure: no remote calls, no logging. Fields whose logical key
// has no board column, or whose value is absent, are omitted entirely —
// never written as null — so unrelated manual board edits survive
// updates. Zero is a value, not an absence: zero nights and a zero amount
// due round-trip.
func mapColumnValues(rec BookingRecord, source SourceChannel, sourceText string,
	status BookingStatus, lifecycle StayLifecycle, schema *ColumnSchema, now time.Time) map[string]interface{} {

	values := make(map[string]interface{})

	setText(values, schema, "booking_id", rec.ExternalID)
	setText(values, schema, "property", rec.UnitName)
	setText(values, schema, "property_id", rec.PropertyID)
	setText(values, schema, "guest", rec.GuestName)
	setEmail(values, schema, "email", rec.GuestEmail, rec.GuestName)
	setPhone(values, schema, "phone", rec.GuestPhone, rec.PhoneCountry)

	setDate(values, schema, "check_in", rec.CheckIn)
	setDate(values, schema, "check_out", rec.CheckOut)
	setOptionalInt(values, schema, "nights", rec.Nights)

	setStatusLabel(values, schema, "status", string(lifecycle))
	setStatusLabel(values, schema, "booking_status", string(status))

	// The Source dropdown only accepts registered labels; unclassified or
	// unregistered sources degrade to the free-text column instead.
	if label := source.Label(); label != "" && dropdownLabelRegistered(schema, "source", label) {
		setDropdown(values, schema, "source", label)
	}
	setText(values, schema, "source_text", firstNonEmpty(sourceText, rec.SourceText))

	setText(values, schema, "currency", rec.Currency)
	setNumber(values, schema, "total_amount", rec.TotalAmount)
	setNumber(values, schema, "amount_paid", rec.AmountPaid)
	setNumber(values, schema, "amount_due", rec.AmountDue)

	setText(values, schema, "language", rec.Language)
	setText(values, schema, "thread_uid", rec.ThreadUID)
	setText(values, schema, "key_code", rec.KeyCode)

	setOptionalInt(values, schema, "adults", rec.Adults)
	setOptionalInt(values, schema, "children", rec.Children)
	setOptionalInt(values, schema, "infants", rec.Infants)
	setOptionalInt(values, schema, "pets", rec.Pets)
	setOptionalInt(values, schema, "people", rec.People)

	setDate(values, schema, "created_at", rec.CreatedAt)
	setDate(values, schema, "updated_at", rec.UpdatedAt)
	setDate(values, schema, "canceled_at", rec.CanceledAt)
	setDate(values, schema, "last_sync", now.UTC().Format("2006-01-02"))

	setLongText(values, schema, "raw", rec.RawJSON)

	return values
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func setText(values map[string]interface{}, schema *ColumnSchema, key, text string) {
	if text == "" {
		return
	}
	col, ok := schema.Column(key)
	if !ok {
		return
	}
	if col.Type == "long_text" || col.Type == "long-text" {
		values[col.ID] = map[string]interface{}{"text": text}
		return
	}
	values[col.ID] = text
}

func setLongText(values map[string]interface{}, schema *ColumnSchema, key, text string) {
	if text == "" {
		return
	}
	if col, ok := schema.Column(key); ok {
		values[col.ID] = map[string]interface{}{"text": text}
	}
}

func setDate(values map[string]interface{}, schema *ColumnSchema, key, date string) {
	if date == "" {
		return
	}
	if col, ok := schema.Column(key); ok {
		values[col.ID] = map[string]interface{}{"date": date}
	}
}

func setNumber(values map[string]interface{}, schema *ColumnSchema, key string, n float64) {
	if col, ok := schema.Column(key); ok {
		values[col.ID] = strconv.FormatFloat(n, 'f', -1, 64)
	}
}

func setOptionalInt(values map[string]interface{}, schema *ColumnSchema, key string, n *int) {
	if n == nil {
		return
	}
	if col, ok := schema.Column(key); ok {
		values[col.ID] = strconv.Itoa(*n)
	}
}

// setStatusLabel writes a single-select label, skipped when the column
// declares a label set that does not include it (an unregistered label
// would be rejected by the API).
func setStatusLabel(values map[string]interface{}, schema *ColumnSchema, key, label string) {
	if label == "" {
		return
	}
	col, ok := schema.Column(key)
	if !ok {
		return
	}
	if registered := monday.ParseSettingsLabels(col.SettingsStr); len(registered) > 0 && !monday.HasLabel(registered, label) {
		return
	}
	values[col.ID] = map[string]interface{}{"label": label}
}

func setDropdown(values map[string]interface{}, schema *ColumnSchema, key, label string) {
	if col, ok := schema.Column(key); ok {
		values[col.ID] = map[string]interface{}{"labels": []string{label}}
	}
}

func dropdownLabelRegistered(schema *ColumnSchema, key, label string) bool {
	col, ok := schema.Column(key)
	if !ok {
		return false
	}
	return monday.HasLabel(monday.ParseSettingsLabels(col.SettingsStr), label)
}

func setEmail(values map[string]interface{}, schema *ColumnSchema, key, address, display string) {
	if address == "" {
		return
	}
	if col, ok := schema.Column(key); ok {
		if display == "" {
			display = address
		}
		values[col.ID] = map[string]interface{}{"email": address, "text": display}
	}
}

func setPhone(values map[string]interface{}, schema *ColumnSchema, key, phone, country string) {
	if phone == "" {
		return
	}
	if col, ok := schema.Column(key); ok {
		value := map[string]interface{}{"phone": phone}
		if country != "" {
			value["countryShortName"] = country
		}
		values[col.ID] = value
	}
}
