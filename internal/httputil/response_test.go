package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
)

func TestWriteServiceError(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/posts", nil)

	WriteServiceError(rr, req, svcerrors.Validation("content", "post content is required"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != string(svcerrors.CodeValidation) {
		t.Errorf("code = %s", body.Code)
	}
	if body.Details["field"] != "content" {
		t.Errorf("details = %v", body.Details)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"content":"hi","extra":1}`))

	var v struct {
		Content string `json:"content"`
	}
	if err := DecodeJSON(rr, req, &v); err == nil {
		t.Fatal("DecodeJSON() error = nil, want unknown field error")
	}
}

func TestReadAllWithLimit(t *testing.T) {
	if _, err := ReadAllWithLimit(strings.NewReader("12345"), 4); err == nil {
		t.Error("expected limit error")
	}
	got, err := ReadAllWithLimit(strings.NewReader("1234"), 4)
	if err != nil || string(got) != "1234" {
		t.Errorf("ReadAllWithLimit() = %q, %v", got, err)
	}
}

func TestWantsJSON(t *testing.T) {
	if !WantsJSON(httptest.NewRequest(http.MethodGet, "/api/status", nil)) {
		t.Error("api path should want JSON")
	}
	if WantsJSON(httptest.NewRequest(http.MethodGet, "/messages", nil)) {
		t.Error("page path without Accept should not want JSON")
	}
}
