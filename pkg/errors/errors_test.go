package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "request conflicts with current circulation state", detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "circulation rule violated", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	withDetail := base.WithDetails(map[string]any{"field": "foo"})
	if withDetail.Details() == nil {
		t.Fatalf("details should be preserved")
	}
	if base.Details() != nil {
		t.Fatalf("WithDetails must not mutate the receiver")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestRuleErrorsMatchByReason(t *testing.T) {
	sentinel := Rule(CodeStateConflict, "LOAN_OVERDUE", "loan is overdue")
	decorated := sentinel.WithDetails(map[string]any{"loan_id": "abc"})

	if !stdErrors.Is(decorated, sentinel) {
		t.Fatalf("expected decorated rule error to match sentinel")
	}
	if !stdErrors.Is(fmt.Errorf("renew: %w", decorated), sentinel) {
		t.Fatalf("expected wrapped rule error to match sentinel")
	}

	other := Rule(CodeStateConflict, "RESERVATION_PENDING", "title has pending reservations")
	if stdErrors.Is(sentinel, other) {
		t.Fatalf("different reasons must not match")
	}

	details, ok := decorated.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected map details, got %T", decorated.Details())
	}
	if details["reason"] != "LOAN_OVERDUE" || details["loan_id"] != "abc" {
		t.Fatalf("unexpected details %#v", details)
	}
}

func TestPlainErrorsMatchByIdentity(t *testing.T) {
	a := New(CodeNotFound, "loan not found")
	b := New(CodeNotFound, "loan not found")
	if stdErrors.Is(a, b) {
		t.Fatalf("plain errors without reason should only match themselves")
	}
	if !stdErrors.Is(a, a) {
		t.Fatalf("expected identity match")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	wrapped := fmt.Errorf("outer: %w", err)
	typed := As(wrapped)
	if typed == nil || typed.Code() != CodeForbidden {
		t.Fatalf("expected forbidden typed error, got %#v", typed)
	}
	if !IsCode(wrapped, CodeForbidden) {
		t.Fatalf("expected IsCode to find forbidden")
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatalf("expected nil for untyped error")
	}
}

func TestDumpCollectsChainAndReason(t *testing.T) {
	rule := Rule(CodeStateConflict, "COPY_ON_HOLD", "copy is held for another reservation")
	err := fmt.Errorf("create loan: %w", rule)

	dump := Dump(err)
	if dump.Code != CodeStateConflict || dump.Reason != "COPY_ON_HOLD" {
		t.Fatalf("unexpected dump %+v", dump)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two links, got %d: %v", len(dump.Chain), dump.Chain)
	}
	fields := dump.Fields()
	if fields["error_reason"] != "COPY_ON_HOLD" || fields["error_code"] != string(CodeStateConflict) {
		t.Fatalf("unexpected fields %#v", fields)
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("pg fields must be omitted without a driver error")
	}
	if len(Dump(nil).Fields()) != 0 {
		t.Fatalf("expected empty fields for nil")
	}
}

func TestDumpExtractsPostgresFault(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "book_copies_barcode_key", TableName: "book_copies"}
	err := Wrap(CodeDependency, fmt.Errorf("insert copy: %w", pgErr), "add copies")

	dump := Dump(err)
	if dump.PG == nil || dump.PG.Code != "23505" || dump.PG.Table != "book_copies" {
		t.Fatalf("expected postgres fault, got %+v", dump.PG)
	}
	if dump.Fields()["pg_constraint"] != "book_copies_barcode_key" {
		t.Fatalf("expected constraint in fields")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
	if IsRetryable(Rule(CodeStateConflict, "LOAN_OVERDUE", "loan is overdue")) {
		t.Fatalf("rule violations are not retryable")
	}
	if !IsRetryable(Wrap(CodeDependency, stdErrors.New("timeout"), "db")) {
		t.Fatalf("dependency failures are retryable")
	}
	if !IsRetryable(stdErrors.New("untyped")) {
		t.Fatalf("untyped errors map to internal and are retryable")
	}
}
