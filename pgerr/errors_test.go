package pgerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCategoryForSQLState(t *testing.T) {
	tests := []struct {
		name     string
		sqlState string
		want     Category
	}{
		{"data error class", "22001", CategoryDataError},
		{"integrity violation", "23505", CategoryIntegrityError},
		{"connection exception", "08006", CategoryOperationalError},
		{"feature not supported", "0A000", CategoryNotSupportedError},
		{"syntax error", "42601", CategoryProgrammingError},
		{"invalid transaction state", "25P02", CategoryInternalError},
		{"unknown prefix", "99999", CategoryUnknown},
		{"too short", "4", CategoryUnknown},
		{"empty", "", CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryForSQLState(tt.sqlState); got != tt.want {
				t.Errorf("CategoryForSQLState(%q) = %v, want %v", tt.sqlState, got, tt.want)
			}
		})
	}
}

func TestSeverityIsFatal(t *testing.T) {
	tests := []struct {
		sev  Severity
		want bool
	}{
		{SeverityFatal, true},
		{SeverityPanic, true},
		{SeverityError, false},
		{SeverityWarning, false},
		{SeverityNotice, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.sev), func(t *testing.T) {
			if got := tt.sev.IsFatal(); got != tt.want {
				t.Errorf("Severity(%q).IsFatal() = %v, want %v", tt.sev, got, tt.want)
			}
		})
	}
}

func TestFromServerClassifiesBySQLState(t *testing.T) {
	e := FromServer(Fields{SQLState: "23505", Severity: "ERROR", Message: "duplicate key"})
	if e.Category != CategoryIntegrityError {
		t.Errorf("Category = %v, want CategoryIntegrityError", e.Category)
	}
	if e.Severity != SeverityError {
		t.Errorf("Severity = %v, want SeverityError", e.Severity)
	}
	if !strings.Contains(e.Error(), "duplicate key") {
		t.Errorf("Error() = %q, want it to contain the message", e.Error())
	}
	if !strings.HasPrefix(e.Error(), "23505") {
		t.Errorf("Error() = %q, want it to start with the SQLSTATE", e.Error())
	}
}

func TestProtocolErrorIsFatal(t *testing.T) {
	e := Protocol("unexpected frame type %q", 'Z')
	if e.Category != CategoryProtocolError {
		t.Errorf("Category = %v, want CategoryProtocolError", e.Category)
	}
	if !e.Severity.IsFatal() {
		t.Errorf("Protocol() error should be fatal, got severity %v", e.Severity)
	}
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection reset by peer")
	e := Wrap(cause, CategoryOperationalError, "read failed")
	if !errors.Is(e, cause) {
		t.Errorf("errors.Is(e, cause) = false, want true")
	}
	if !strings.Contains(e.Error(), "connection reset by peer") {
		t.Errorf("Error() = %q, want it to surface the wrapped cause", e.Error())
	}
}

func TestCachedQueryExpiredIsDistinguishable(t *testing.T) {
	err := error(NewCachedQueryExpired("SELECT 1", Fields{SQLState: "0A000", Message: "cached plan must not change result type"}))

	var cqe *CachedQueryExpired
	if !errors.As(err, &cqe) {
		t.Fatalf("errors.As failed to find *CachedQueryExpired")
	}
	if cqe.SQL != "SELECT 1" {
		t.Errorf("SQL = %q, want %q", cqe.SQL, "SELECT 1")
	}

	var sdne *StatementDoesNotExist
	if errors.As(err, &sdne) {
		t.Errorf("errors.As incorrectly matched *StatementDoesNotExist")
	}
}

func TestStatementDoesNotExistIsDistinguishable(t *testing.T) {
	err := error(NewStatementDoesNotExist("pgwire_3", Fields{SQLState: "26000"}))

	var sdne *StatementDoesNotExist
	if !errors.As(err, &sdne) {
		t.Fatalf("errors.As failed to find *StatementDoesNotExist")
	}
	if sdne.ServerName != "pgwire_3" {
		t.Errorf("ServerName = %q, want %q", sdne.ServerName, "pgwire_3")
	}
}

func TestCategoryOfAndIsCategory(t *testing.T) {
	plain := errors.New("boring error")
	if got := CategoryOf(plain); got != CategoryUnknown {
		t.Errorf("CategoryOf(plain error) = %v, want CategoryUnknown", got)
	}

	structured := InvalidOperation("concurrent execute on the same connection")
	if !IsCategory(structured, CategoryInvalidOperation) {
		t.Errorf("IsCategory(structured, CategoryInvalidOperation) = false, want true")
	}

	cqe := NewCachedQueryExpired("SELECT 1", Fields{SQLState: "0A000"})
	if got := CategoryOf(cqe); got != CategoryInternalError {
		t.Errorf("CategoryOf(cqe) = %v, want CategoryInternalError", got)
	}
}

func TestFieldsAsMapOmitsEmpty(t *testing.T) {
	f := Fields{SQLState: "42601", Message: "syntax error"}
	m := f.AsMap()
	if m["sqlstate"] != "42601" || m["message"] != "syntax error" {
		t.Errorf("AsMap() = %v, missing expected keys", m)
	}
	if _, ok := m["hint"]; ok {
		t.Errorf("AsMap() included empty field %q", "hint")
	}
}

func TestErrorFormatPlusV(t *testing.T) {
	e := FromServer(Fields{SQLState: "42601", Severity: "ERROR", Message: "syntax error"}).WithOp("Conn.Execute")
	out := fmt.Sprintf("%+v", e)
	if !strings.Contains(out, "operation: Conn.Execute") {
		t.Errorf("%%+v output = %q, want it to include the operation name", out)
	}
}
