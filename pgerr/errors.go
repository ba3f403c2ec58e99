// Package pgerr provides structured error handling for the PostgreSQL wire
// driver.
//
// Every server-observable failure carries:
//   - a Category derived from the SQLSTATE prefix (or a locally-detected
//     condition for framing/API misuse)
//   - the Severity reported by the server (or Error for local conditions)
//   - the full set of decoded ErrorResponse/NoticeResponse fields
//   - an optional wrapped cause for I/O or framing failures
package pgerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category classifies an error by SQLSTATE prefix, mirroring the taxonomy
// PostgreSQL documents for client drivers.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryDataError
	CategoryIntegrityError
	CategoryOperationalError
	CategoryNotSupportedError
	CategoryProgrammingError
	CategoryInternalError
	CategoryProtocolError      // locally detected framing/decoding violations
	CategoryInvalidOperation   // API misuse, e.g. concurrent execute
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "data_error"
	case CategoryIntegrityError:
		return "integrity_error"
	case CategoryOperationalError:
		return "operational_error"
	case CategoryNotSupportedError:
		return "not_supported_error"
	case CategoryProgrammingError:
		return "programming_error"
	case CategoryInternalError:
		return "internal_error"
	case CategoryProtocolError:
		return "protocol_error"
	case CategoryInvalidOperation:
		return "invalid_operation_error"
	default:
		return "unknown"
	}
}

// sqlStatePrefixes maps a 2-character SQLSTATE class to a Category. See
// SPEC_FULL.md §7 for the authoritative table.
var sqlStatePrefixes = map[string]Category{
	"22": CategoryDataError,
	"2F": CategoryDataError,
	"23": CategoryIntegrityError,
	"44": CategoryIntegrityError,
	"08": CategoryOperationalError,
	"28": CategoryOperationalError,
	"40": CategoryOperationalError,
	"53": CategoryOperationalError,
	"54": CategoryOperationalError,
	"55": CategoryOperationalError,
	"57": CategoryOperationalError,
	"58": CategoryOperationalError,
	"HV": CategoryOperationalError,
	"0A": CategoryNotSupportedError,
	"20": CategoryProgrammingError,
	"21": CategoryProgrammingError,
	"34": CategoryProgrammingError,
	"3D": CategoryProgrammingError,
	"3F": CategoryProgrammingError,
	"42": CategoryProgrammingError,
	"0Z": CategoryInternalError,
	"24": CategoryInternalError,
	"25": CategoryInternalError,
	"26": CategoryInternalError,
	"27": CategoryInternalError,
	"2B": CategoryInternalError,
	"2D": CategoryInternalError,
	"38": CategoryInternalError,
	"39": CategoryInternalError,
	"3B": CategoryInternalError,
	"F0": CategoryInternalError,
	"P0": CategoryInternalError,
	"XX": CategoryInternalError,
}

// CategoryForSQLState classifies a 5-character SQLSTATE by its prefix.
// Unknown prefixes classify as CategoryUnknown, not a zero value the caller
// could mistake for success.
func CategoryForSQLState(sqlState string) Category {
	if len(sqlState) < 2 {
		return CategoryUnknown
	}
	if cat, ok := sqlStatePrefixes[sqlState[:2]]; ok {
		return cat
	}
	return CategoryUnknown
}

// Severity mirrors the severity PostgreSQL reports on ErrorResponse and
// NoticeResponse frames (field 'S'/'V').
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityFatal   Severity = "FATAL"
	SeverityPanic   Severity = "PANIC"
	SeverityWarning Severity = "WARNING"
	SeverityNotice  Severity = "NOTICE"
	SeverityDebug   Severity = "DEBUG"
	SeverityInfo    Severity = "INFO"
	SeverityLog     Severity = "LOG"
)

// IsFatal reports whether this severity requires the connection to close
// immediately per SPEC_FULL.md §4.5/§7.
func (s Severity) IsFatal() bool {
	return s == SeverityFatal || s == SeverityPanic
}

// Fields holds the decoded ErrorResponse/NoticeResponse field set, keyed by
// the single-byte PostgreSQL field codes (see SPEC_FULL.md §4.5 'E').
type Fields struct {
	Severity         string
	SeverityLocale   string // 'S' (possibly localized), 'V' is the non-localized Severity above
	SQLState         string
	Message          string
	Detail           string
	Hint             string
	Position         string
	InternalPosition string
	InternalQuery    string
	Where            string
	SchemaName       string
	TableName        string
	ColumnName       string
	DataTypeName     string
	ConstraintName   string
	File             string
	Line             string
	Routine          string
}

// AsMap renders non-empty fields as a generic map, for logging or generic
// diagnostics tooling.
func (f Fields) AsMap() map[string]string {
	m := make(map[string]string, 16)
	add := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	add("severity", f.Severity)
	add("sqlstate", f.SQLState)
	add("message", f.Message)
	add("detail", f.Detail)
	add("hint", f.Hint)
	add("position", f.Position)
	add("internal_position", f.InternalPosition)
	add("internal_query", f.InternalQuery)
	add("where", f.Where)
	add("schema_name", f.SchemaName)
	add("table_name", f.TableName)
	add("column_name", f.ColumnName)
	add("data_type_name", f.DataTypeName)
	add("constraint_name", f.ConstraintName)
	add("file", f.File)
	add("line", f.Line)
	add("routine", f.Routine)
	return m
}

// Error is the structured error type returned by every package in this
// module for a server-observable or locally-detected protocol condition.
type Error struct {
	Category Category
	Severity Severity
	Fields   Fields

	Cause error

	Time   time.Time
	OpName string // e.g. "Conn.Execute", "StatementCache.touch"
}

func (e *Error) Error() string {
	var buf strings.Builder
	if e.Fields.SQLState != "" {
		buf.WriteString(e.Fields.SQLState)
		buf.WriteString(" ")
	}
	buf.WriteString(e.Category.String())
	buf.WriteString(": ")
	if e.Fields.Message != "" {
		buf.WriteString(e.Fields.Message)
	} else if e.Cause != nil {
		buf.WriteString(e.Cause.Error())
	}
	if e.Cause != nil && e.Fields.Message != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Cause.Error())
	}
	return buf.String()
}

// Unwrap supports errors.Is/errors.As chains onto the local cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Format implements fmt.Formatter. "%+v" dumps the full diagnostic payload;
// "%s"/"%v" stay terse.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "%s [%s/%s] %s\n",
				e.Time.Format(time.RFC3339), e.Severity, e.Category, e.Error())
			if e.OpName != "" {
				fmt.Fprintf(f, "  operation: %s\n", e.OpName)
			}
			if fm := e.Fields.AsMap(); len(fm) > 0 {
				fmt.Fprintf(f, "  fields:\n")
				for k, v := range fm {
					fmt.Fprintf(f, "    %s: %s\n", k, v)
				}
			}
			if e.Cause != nil {
				fmt.Fprintf(f, "  caused by: %v\n", e.Cause)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(f, e.Error())
	case 'q':
		fmt.Fprintf(f, "%q", e.Error())
	}
}

// WithOp sets the operation name that raised the error and returns e for
// chaining.
func (e *Error) WithOp(op string) *Error {
	e.OpName = op
	return e
}

// FromServer builds an Error from a decoded ErrorResponse/NoticeResponse
// field set, classifying it by SQLSTATE prefix.
func FromServer(fields Fields) *Error {
	return &Error{
		Category: CategoryForSQLState(fields.SQLState),
		Severity: Severity(fields.Severity),
		Fields:   fields,
		Time:     time.Now(),
	}
}

// Protocol builds a locally-detected ProtocolError, e.g. a framing violation
// or a malformed ErrorResponse missing mandatory fields.
func Protocol(format string, args ...interface{}) *Error {
	return &Error{
		Category: CategoryProtocolError,
		Severity: SeverityFatal,
		Fields:   Fields{Message: fmt.Sprintf(format, args...)},
		Time:     time.Now(),
	}
}

// InvalidOperation builds an InvalidOperationError for API misuse such as a
// concurrent execute on the same connection.
func InvalidOperation(format string, args ...interface{}) *Error {
	return &Error{
		Category: CategoryInvalidOperation,
		Severity: SeverityError,
		Fields:   Fields{Message: fmt.Sprintf(format, args...)},
		Time:     time.Now(),
	}
}

// Wrap attaches a locally-caught cause (I/O failure, context cancellation)
// to a new error of the given category.
func Wrap(cause error, category Category, format string, args ...interface{}) *Error {
	return &Error{
		Category: category,
		Severity: SeverityError,
		Fields:   Fields{Message: fmt.Sprintf(format, args...)},
		Cause:    cause,
		Time:     time.Now(),
	}
}

// serverError is the name under which CachedQueryExpired and
// StatementDoesNotExist embed *Error, so that the embedded field does not
// clash with the promoted Error method and both types satisfy error.
type serverError = Error

// CachedQueryExpired is raised when the server rejects a cached prepared
// statement with SQLSTATE 0A000 (e.g. "cached plan must not change result
// type"). It is a distinguished subclass of InternalError so the execution
// façade's one-shot retry (SPEC_FULL.md §4.6/§4.7) can target it via
// errors.As without string-matching messages.
type CachedQueryExpired struct {
	*serverError
	SQL string
}

func NewCachedQueryExpired(sql string, fields Fields) *CachedQueryExpired {
	e := FromServer(fields)
	e.Category = CategoryInternalError
	return &CachedQueryExpired{serverError: e, SQL: sql}
}

// StatementDoesNotExist is raised when the server reports that a named
// prepared statement is gone (e.g. after an unexpected DEALLOCATE ALL).
// Same recovery path as CachedQueryExpired.
type StatementDoesNotExist struct {
	*serverError
	ServerName string
}

func NewStatementDoesNotExist(serverName string, fields Fields) *StatementDoesNotExist {
	e := FromServer(fields)
	e.Category = CategoryInternalError
	return &StatementDoesNotExist{serverError: e, ServerName: serverName}
}

// Is/As re-exports so callers need only import this package, matching the
// host project's convention of wrapping the standard errors package.
func Is(err, target error) bool { return errors.Is(err, target) }
func As(err error, target interface{}) bool { return errors.As(err, target) }

// CategoryOf extracts the Category from an error's chain, or CategoryUnknown
// if the error is not one of ours.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	var cqe *CachedQueryExpired
	if errors.As(err, &cqe) {
		return cqe.Category
	}
	var sdne *StatementDoesNotExist
	if errors.As(err, &sdne) {
		return sdne.Category
	}
	return CategoryUnknown
}

// IsCategory reports whether err classifies under the given Category.
func IsCategory(err error, category Category) bool {
	return CategoryOf(err) == category
}
