package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

var errDuplicate = Conflict("duplicate_request", "a pending request already exists")

func TestIs_MatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("create: %w", Conflict("duplicate_request", "dup for %s", "p@x.com"))
	if !errors.Is(err, errDuplicate) {
		t.Fatal("expected errors.Is to match sentinel by kind and code")
	}
	other := Conflict("invalid_transition", "cannot approve")
	if errors.Is(other, errDuplicate) {
		t.Fatal("different codes must not match")
	}
	if errors.Is(NotFound("missing"), errDuplicate) {
		t.Fatal("different kinds must not match")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{Validation("email is required"), KindValidation},
		{fmt.Errorf("wrap: %w", NotFound("profile not found")), KindNotFound},
		{Integrity(errors.New("conn reset"), "approval failed"), KindIntegrity},
		{errors.New("plain"), KindInternal},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestHTTP_Integrity(t *testing.T) {
	cause := errors.New("tx aborted")
	he := HTTP(Integrity(cause, "could not approve request"))
	if he.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", he.Code)
	}
	body, ok := he.Message.(Body)
	if !ok {
		t.Fatalf("expected Body message, got %T", he.Message)
	}
	if !body.Retryable {
		t.Error("integrity errors must be retryable")
	}
	if body.Message != "could not approve request; please try again" {
		t.Errorf("unexpected message %q", body.Message)
	}
	if !errors.Is(he.Internal, cause) {
		t.Error("expected cause to be kept as internal error")
	}
}

func TestHTTP_Unclassified(t *testing.T) {
	he := HTTP(errors.New("pq: something broke"))
	if he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", he.Code)
	}
	body := he.Message.(Body)
	if body.Message != "internal server error" {
		t.Errorf("internal details leaked: %q", body.Message)
	}
}

func TestHTTP_StatusByKind(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Auth("profile not found"), http.StatusUnauthorized},
		{Forbidden("not yours"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{errDuplicate, http.StatusConflict},
	}
	for _, tt := range tests {
		if got := HTTP(tt.err).Code; got != tt.code {
			t.Errorf("HTTP(%v).Code = %d, want %d", tt.err, got, tt.code)
		}
	}
}

func TestWithErr_DoesNotMutateSentinel(t *testing.T) {
	wrapped := errDuplicate.WithErr(errors.New("23505"))
	if errDuplicate.Err != nil {
		t.Fatal("sentinel must not be modified")
	}
	if !errors.Is(wrapped, errDuplicate) {
		t.Fatal("copy should still match the sentinel")
	}
}
