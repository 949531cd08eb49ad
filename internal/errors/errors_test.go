package errors

import (
	"fmt"
	"net/http"
	"testing"

	stderrors "errors"
)

func TestValidationCarriesField(t *testing.T) {
	err := Validation("content", "post content is required")
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want 400", err.HTTPStatus)
	}
	if err.Details["field"] != "content" {
		t.Errorf("field detail = %v, want content", err.Details["field"])
	}
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	base := New(CodeBusy, "busy", http.StatusConflict)
	derived := base.WithDetails("op", "like")
	if len(base.Details) != 0 {
		t.Errorf("base details mutated: %v", base.Details)
	}
	if derived.Details["op"] != "like" {
		t.Errorf("derived details = %v", derived.Details)
	}
}

func TestGetServiceErrorThroughWrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := fmt.Errorf("load feed: %w", Gateway("list posts", cause))

	se := GetServiceError(err)
	if se == nil {
		t.Fatal("GetServiceError() = nil")
	}
	if se.Code != CodeGateway {
		t.Errorf("Code = %s, want %s", se.Code, CodeGateway)
	}
	if !stderrors.Is(err, cause) {
		t.Error("cause not reachable through errors.Is")
	}
	if HTTPStatus(err) != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want 502", HTTPStatus(err))
	}
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeNotFound, "", 0)
	if !stderrors.Is(NotFound("profile", "u1"), sentinel) {
		t.Error("NotFound should match code-only sentinel")
	}
	if stderrors.Is(Forbidden("no"), sentinel) {
		t.Error("Forbidden should not match NotFound sentinel")
	}
}

func TestHTTPStatusDefault(t *testing.T) {
	if got := HTTPStatus(stderrors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want 500", got)
	}
	if !HasCode(Unauthorized("x"), CodeUnauthorized) {
		t.Error("HasCode(Unauthorized) = false")
	}
}
