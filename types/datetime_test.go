package types

import "testing"

func TestDateTextRoundTrip(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(OIDDate, FormatText, []byte("2024-03-15"))
	if err != nil {
		t.Fatalf("Decode(date text) error = %v", err)
	}
	d := v.(Date)
	if d.String() != "2024-03-15" {
		t.Errorf("String() = %q, want 2024-03-15", d.String())
	}
}

func TestDateBinaryRoundTrip(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(OIDDate, FormatText, []byte("2000-01-01"))
	if err != nil {
		t.Fatalf("Decode(date text) error = %v", err)
	}
	d := v.(Date)

	oid, data, format, err := r.Encode(d)
	if err != nil || oid != OIDDate || format != FormatBinary {
		t.Fatalf("Encode(Date) = (%d, _, %v, %v)", oid, format, err)
	}
	// Epoch date should encode as day 0.
	for _, b := range data {
		if b != 0 {
			t.Fatalf("epoch date did not encode as all-zero bytes: %v", data)
		}
	}

	v2, err := r.Decode(OIDDate, FormatBinary, data)
	if err != nil || v2.(Date).String() != d.String() {
		t.Errorf("round trip mismatch: %v (err=%v)", v2, err)
	}
}

func TestDateInfinitySentinels(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(OIDDate, FormatText, []byte("infinity"))
	if err != nil || v.(Date).String() != "infinity" {
		t.Fatalf("Decode(infinity) = (%v, %v)", v, err)
	}
	v, err = r.Decode(OIDDate, FormatText, []byte("-infinity"))
	if err != nil || v.(Date).String() != "-infinity" {
		t.Fatalf("Decode(-infinity) = (%v, %v)", v, err)
	}
}

func TestTimestampTextRoundTrip(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(OIDTimestamp, FormatText, []byte("2024-03-15 13:45:30"))
	if err != nil {
		t.Fatalf("Decode(timestamp text) error = %v", err)
	}
	ts := v.(Timestamp)
	if ts.String() != "2024-03-15 13:45:30" {
		t.Errorf("String() = %q, want \"2024-03-15 13:45:30\"", ts.String())
	}

	oid, data, format, err := r.Encode(ts)
	if err != nil || oid != OIDTimestamp || format != FormatBinary {
		t.Fatalf("Encode(Timestamp) = (%d, _, %v, %v)", oid, format, err)
	}
	v2, err := r.Decode(OIDTimestamp, FormatBinary, data)
	if err != nil || v2.(Timestamp).String() != ts.String() {
		t.Errorf("round trip mismatch: %v (err=%v)", v2, err)
	}
}

func TestIntervalTextParsing(t *testing.T) {
	iv, err := parseIntervalText("1 year 2 mons 3 days 04:05:06")
	if err != nil {
		t.Fatalf("parseIntervalText error = %v", err)
	}
	if iv.Months != 14 {
		t.Errorf("Months = %d, want 14 (1 year + 2 months)", iv.Months)
	}
	if iv.Days != 3 {
		t.Errorf("Days = %d, want 3", iv.Days)
	}
	wantUsecs := int64(4*3600000000 + 5*60000000 + 6*1000000)
	if iv.Microseconds != wantUsecs {
		t.Errorf("Microseconds = %d, want %d", iv.Microseconds, wantUsecs)
	}
}

func TestIntervalBinaryRoundTrip(t *testing.T) {
	r := NewRegistry()
	iv := Interval{Months: 14, Days: 3, Microseconds: 14706000000}
	oid, data, format, err := r.Encode(iv)
	if err != nil || oid != OIDInterval || format != FormatBinary {
		t.Fatalf("Encode(Interval) = (%d, _, %v, %v)", oid, format, err)
	}
	v, err := r.Decode(OIDInterval, FormatBinary, data)
	if err != nil {
		t.Fatalf("Decode(encoded interval) error = %v", err)
	}
	got := v.(Interval)
	if got != iv {
		t.Errorf("round trip = %+v, want %+v", got, iv)
	}
}

func TestTimeOfDayTextAndBinary(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(OIDTime, FormatText, []byte("13:45:30"))
	if err != nil {
		t.Fatalf("Decode(time text) error = %v", err)
	}
	tm := v.(TimeOfDay)
	if tm.String() != "13:45:30" {
		t.Errorf("String() = %q, want 13:45:30", tm.String())
	}

	oid, data, format, err := r.Encode(tm)
	if err != nil || oid != OIDTime || format != FormatBinary {
		t.Fatalf("Encode(TimeOfDay) = (%d, _, %v, %v)", oid, format, err)
	}
	v2, err := r.Decode(OIDTime, FormatBinary, data)
	if err != nil || v2.(TimeOfDay).String() != tm.String() {
		t.Errorf("round trip mismatch: %v (err=%v)", v2, err)
	}
}
