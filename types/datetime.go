package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
)

// pgEpoch is PostgreSQL's date/timestamp epoch (2000-01-01), 730120 days
// after the proleptic-Gregorian ordinal epoch used internally by Go's time
// package — the constant SPEC_FULL.md §4.2 calls out explicitly. Modelling
// it as a time.Time anchor rather than hand-rolling the day-count arithmetic
// keeps calendar math (leap years, month lengths) delegated to the standard
// library, the same division of labour pkg/tds/types.go uses for its own
// DATETIME/DATETIME2 conversions.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Date wraps civil.Date with PostgreSQL's ±infinity sentinels, which a bare
// civil.Date has no room for.
type Date struct {
	Date    civil.Date
	Special string // "", "infinity", "-infinity"
}

func (d Date) String() string {
	if d.Special != "" {
		return d.Special
	}
	return formatCivilDate(d.Date)
}

// Timestamp wraps civil.DateTime with the same sentinels, used for both
// timestamp and timestamptz (the latter always carries a UTC wall-clock
// value; the caller/transport layer applies TimeZone for display).
type Timestamp struct {
	DateTime civil.DateTime
	Special  string
}

func (t Timestamp) String() string {
	if t.Special != "" {
		return t.Special
	}
	return formatCivilDate(t.DateTime.Date) + " " + formatCivilTime(t.DateTime.Time)
}

// TimeOfDay wraps civil.Time for the plain `time` type.
type TimeOfDay struct {
	Time civil.Time
}

func (t TimeOfDay) String() string { return formatCivilTime(t.Time) }

// TimeTz is `time` with an explicit UTC offset, PostgreSQL's timetz.
type TimeTz struct {
	Time          civil.Time
	OffsetSeconds int32 // seconds EAST of UTC, i.e. already un-negated from the wire
}

func (t TimeTz) String() string {
	return formatCivilTime(t.Time) + formatOffset(t.OffsetSeconds)
}

// Interval is PG's interval: months and days are kept separate from
// microseconds because their length in absolute time is calendar-dependent
// (SPEC_FULL.md §4.2).
type Interval struct {
	Months       int32
	Days         int32
	Microseconds int64
}

func (i Interval) String() string {
	var parts []string
	years, months := i.Months/12, i.Months%12
	if years != 0 {
		parts = append(parts, fmt.Sprintf("%d year%s", years, plural(years)))
	}
	if months != 0 {
		parts = append(parts, fmt.Sprintf("%d mon%s", months, plural(months)))
	}
	if i.Days != 0 {
		parts = append(parts, fmt.Sprintf("%d day%s", i.Days, plural(int32(i.Days))))
	}
	neg := i.Microseconds < 0
	us := i.Microseconds
	if neg {
		us = -us
	}
	h := us / 3600000000
	us -= h * 3600000000
	m := us / 60000000
	us -= m * 60000000
	s := us / 1000000
	us -= s * 1000000
	sign := ""
	if neg {
		sign = "-"
	}
	timePart := fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
	if us != 0 {
		timePart += strings.TrimRight(fmt.Sprintf(".%06d", us), "0")
	}
	if len(parts) == 0 || i.Microseconds != 0 {
		parts = append(parts, timePart)
	}
	if len(parts) == 0 {
		return "00:00:00"
	}
	return strings.Join(parts, " ")
}

func plural(n int32) string {
	if n == 1 || n == -1 {
		return ""
	}
	return "s"
}

func formatCivilDate(d civil.Date) string {
	year := d.Year
	suffix := ""
	if year <= 0 {
		year = -year + 1
		suffix = " BC"
	}
	return fmt.Sprintf("%04d-%02d-%02d%s", year, d.Month, d.Day, suffix)
}

func formatCivilTime(t civil.Time) string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if t.Nanosecond != 0 {
		s += strings.TrimRight(fmt.Sprintf(".%09d", t.Nanosecond), "0")
	}
	return s
}

func formatOffset(secs int32) string {
	sign := "+"
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	out := fmt.Sprintf("%s%02d", sign, h)
	if m != 0 || s != 0 {
		out += fmt.Sprintf(":%02d", m)
	}
	if s != 0 {
		out += fmt.Sprintf(":%02d", s)
	}
	return out
}

func registerDateTimeCodecs(r *Registry) {
	r.RegisterDecoder(OIDDate, decodeDateText, decodeDateBinary)
	r.RegisterDecoder(OIDTime, decodeTimeText, decodeTimeBinary)
	r.RegisterDecoder(OIDTimeTz, decodeTimeTzText, decodeTimeTzBinary)
	r.RegisterDecoder(OIDTimestamp, decodeTimestampText, decodeTimestampBinary)
	r.RegisterDecoder(OIDTimestampTz, decodeTimestampText, decodeTimestampBinary)
	r.RegisterDecoder(OIDInterval, decodeIntervalText, decodeIntervalBinary)
	r.RegisterEncoder(encodeDateTime)
}

// ---- date ----

func decodeDateBinary(buf []byte) (interface{}, error) {
	if len(buf) != 4 {
		return nil, errInvalid("date", nil)
	}
	days := int32(be32ToU(buf))
	switch days {
	case math.MaxInt32:
		return Date{Special: "infinity"}, nil
	case math.MinInt32:
		return Date{Special: "-infinity"}, nil
	}
	t := pgEpoch.AddDate(0, 0, int(days))
	return Date{Date: civil.DateOf(t)}, nil
}

func decodeDateText(buf []byte) (interface{}, error) {
	s := string(buf)
	switch s {
	case "infinity":
		return Date{Special: "infinity"}, nil
	case "-infinity":
		return Date{Special: "-infinity"}, nil
	}
	d, err := civil.ParseDate(strings.TrimSuffix(s, " BC"))
	if err != nil {
		return nil, errInvalid("date", err)
	}
	if strings.HasSuffix(s, " BC") {
		d.Year = -(d.Year - 1)
	}
	return Date{Date: d}, nil
}

func be32ToU(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ---- time / timetz ----

func decodeTimeBinary(buf []byte) (interface{}, error) {
	if len(buf) != 8 {
		return nil, errInvalid("time", nil)
	}
	usecs := int64(be64ToU(buf))
	return TimeOfDay{Time: civilTimeFromUsecs(usecs)}, nil
}

func decodeTimeText(buf []byte) (interface{}, error) {
	t, err := civil.ParseTime(string(buf))
	if err != nil {
		return nil, errInvalid("time", err)
	}
	return TimeOfDay{Time: t}, nil
}

func decodeTimeTzBinary(buf []byte) (interface{}, error) {
	if len(buf) != 12 {
		return nil, errInvalid("timetz", nil)
	}
	usecs := int64(be64ToU(buf[0:8]))
	offsetNeg := int32(be32ToU(buf[8:12]))
	return TimeTz{Time: civilTimeFromUsecs(usecs), OffsetSeconds: -offsetNeg}, nil
}

func decodeTimeTzText(buf []byte) (interface{}, error) {
	s := string(buf)
	idx := strings.IndexAny(s, "+-")
	timePart, offPart := s, ""
	if idx > 0 {
		timePart, offPart = s[:idx], s[idx:]
	}
	t, err := civil.ParseTime(timePart)
	if err != nil {
		return nil, errInvalid("timetz", err)
	}
	offset, err := parseOffset(offPart)
	if err != nil {
		return nil, errInvalid("timetz", err)
	}
	return TimeTz{Time: t, OffsetSeconds: offset}, nil
}

func parseOffset(s string) (int32, error) {
	if s == "" {
		return 0, nil
	}
	sign := int32(1)
	if s[0] == '-' {
		sign = -1
	}
	s = s[1:]
	parts := strings.Split(s, ":")
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, sec := 0, 0
	if len(parts) > 1 {
		m, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		sec, _ = strconv.Atoi(parts[2])
	}
	return sign * int32(h*3600+m*60+sec), nil
}

func civilTimeFromUsecs(usecs int64) civil.Time {
	s := usecs / 1000000
	us := usecs % 1000000
	h := s / 3600
	s -= h * 3600
	m := s / 60
	s -= m * 60
	return civil.Time{Hour: int(h), Minute: int(m), Second: int(s), Nanosecond: int(us) * 1000}
}

func usecsFromCivilTime(t civil.Time) int64 {
	return int64(t.Hour)*3600000000 + int64(t.Minute)*60000000 + int64(t.Second)*1000000 + int64(t.Nanosecond)/1000
}

func be64ToU(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// ---- timestamp / timestamptz ----

func decodeTimestampBinary(buf []byte) (interface{}, error) {
	if len(buf) != 8 {
		return nil, errInvalid("timestamp", nil)
	}
	usecs := int64(be64ToU(buf))
	switch usecs {
	case math.MaxInt64:
		return Timestamp{Special: "infinity"}, nil
	case math.MinInt64:
		return Timestamp{Special: "-infinity"}, nil
	}
	t := pgEpoch.Add(time.Duration(usecs) * time.Microsecond)
	return Timestamp{DateTime: civil.DateTimeOf(t)}, nil
}

func decodeTimestampText(buf []byte) (interface{}, error) {
	s := string(buf)
	switch s {
	case "infinity":
		return Timestamp{Special: "infinity"}, nil
	case "-infinity":
		return Timestamp{Special: "-infinity"}, nil
	}
	bc := strings.HasSuffix(s, " BC")
	s = strings.TrimSuffix(s, " BC")
	s = strings.Replace(s, " ", "T", 1)
	dt, err := civil.ParseDateTime(s)
	if err != nil {
		return nil, errInvalid("timestamp", err)
	}
	if bc {
		dt.Date.Year = -(dt.Date.Year - 1)
	}
	return Timestamp{DateTime: dt}, nil
}

// ---- interval ----

func decodeIntervalBinary(buf []byte) (interface{}, error) {
	if len(buf) != 16 {
		return nil, errInvalid("interval", nil)
	}
	usecs := int64(be64ToU(buf[0:8]))
	days := int32(be32ToU(buf[8:12]))
	months := int32(be32ToU(buf[12:16]))
	return Interval{Microseconds: usecs, Days: days, Months: months}, nil
}

func decodeIntervalText(buf []byte) (interface{}, error) {
	return parseIntervalText(string(buf))
}

// parseIntervalText parses the `postgres` interval output style:
// "[<n> year[s]] [<n> mon[s]] [<n> day[s]] [HH:MM:SS]". This covers the
// driver's own encoder output and the server's default IntervalStyle.
func parseIntervalText(s string) (Interval, error) {
	var iv Interval
	fields := strings.Fields(s)
	i := 0
	for i < len(fields) {
		if i+1 < len(fields) && isIntervalUnit(fields[i+1], "year") {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				return iv, errInvalid("interval", err)
			}
			iv.Months += int32(n) * 12
			i += 2
			continue
		}
		if i+1 < len(fields) && isIntervalUnit(fields[i+1], "mon") {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				return iv, errInvalid("interval", err)
			}
			iv.Months += int32(n)
			i += 2
			continue
		}
		if i+1 < len(fields) && isIntervalUnit(fields[i+1], "day") {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				return iv, errInvalid("interval", err)
			}
			iv.Days += int32(n)
			i += 2
			continue
		}
		if strings.Contains(fields[i], ":") {
			neg := strings.HasPrefix(fields[i], "-")
			part := strings.TrimPrefix(fields[i], "-")
			us, err := parseClockUsecs(part)
			if err != nil {
				return iv, err
			}
			if neg {
				us = -us
			}
			iv.Microseconds += us
			i++
			continue
		}
		i++
	}
	return iv, nil
}

func isIntervalUnit(field, unit string) bool {
	return strings.HasPrefix(field, unit)
}

func parseClockUsecs(s string) (int64, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, errInvalid("interval", nil)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errInvalid("interval", err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errInvalid("interval", err)
	}
	secStr := parts[2]
	sf, err := strconv.ParseFloat(secStr, 64)
	if err != nil {
		return 0, errInvalid("interval", err)
	}
	return int64(h)*3600000000 + int64(m)*60000000 + int64(sf*1000000), nil
}

// ---- encoder ----

func encodeDateTime(val interface{}) (uint32, []byte, Format, error) {
	switch v := val.(type) {
	case Date:
		return encodeDate(v)
	case TimeOfDay:
		b := be64(uint64(usecsFromCivilTime(v.Time)))
		return OIDTime, b, FormatBinary, nil
	case TimeTz:
		buf := make([]byte, 12)
		copy(buf[0:8], be64(uint64(usecsFromCivilTime(v.Time))))
		copy(buf[8:12], be32(uint32(-v.OffsetSeconds)))
		return OIDTimeTz, buf, FormatBinary, nil
	case Timestamp:
		return encodeTimestamp(v)
	case Interval:
		buf := make([]byte, 16)
		copy(buf[0:8], be64(uint64(v.Microseconds)))
		copy(buf[8:12], be32(uint32(v.Days)))
		copy(buf[12:16], be32(uint32(v.Months)))
		return OIDInterval, buf, FormatBinary, nil
	case time.Time:
		return encodeTimestamp(Timestamp{DateTime: civil.DateTimeOf(v)})
	}
	return 0, nil, FormatText, nil
}

func encodeDate(d Date) (uint32, []byte, Format, error) {
	switch d.Special {
	case "infinity":
		return OIDDate, be32(uint32(math.MaxInt32)), FormatBinary, nil
	case "-infinity":
		return OIDDate, be32(uint32(math.MinInt32)), FormatBinary, nil
	}
	days := daysSinceEpoch(d.Date)
	return OIDDate, be32(uint32(int32(days))), FormatBinary, nil
}

func encodeTimestamp(t Timestamp) (uint32, []byte, Format, error) {
	switch t.Special {
	case "infinity":
		return OIDTimestamp, be64(uint64(math.MaxInt64)), FormatBinary, nil
	case "-infinity":
		return OIDTimestamp, be64(uint64(math.MinInt64)), FormatBinary, nil
	}
	days := daysSinceEpoch(t.DateTime.Date)
	usecsOfDay := usecsFromCivilTime(t.DateTime.Time)
	total := days*86400000000 + usecsOfDay
	return OIDTimestamp, be64(uint64(total)), FormatBinary, nil
}

func daysSinceEpoch(d civil.Date) int64 {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	return int64(t.Sub(pgEpoch).Hours() / 24)
}
