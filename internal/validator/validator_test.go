package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/examina/examina-backend/internal/model"
)

func bindJSON(t *testing.T, body string, dst interface{}) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	Setup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	return Bind(c, dst)
}

func TestBindAcceptsKnownViolationType(t *testing.T) {
	var req model.ReportViolationRequest
	fields := bindJSON(t, `{"type":"TAB_SWITCH","description":"left the exam tab"}`, &req)
	if fields != nil {
		t.Fatalf("unexpected validation errors: %v", fields)
	}
	if req.Type != model.ViolationTabSwitch {
		t.Fatalf("Type = %q, want TAB_SWITCH", req.Type)
	}
}

func TestBindRejectsUnknownViolationType(t *testing.T) {
	var req model.ReportViolationRequest
	fields := bindJSON(t, `{"type":"PHONE_CALL"}`, &req)
	if fields == nil {
		t.Fatal("expected a validation failure for an unknown type")
	}
	msg, ok := fields["type"]
	if !ok {
		t.Fatalf("errors keyed by %v, want json field name type", fields)
	}
	if !strings.Contains(msg, "violation type") {
		t.Fatalf("message = %q, want the registered translation", msg)
	}
}

func TestBindReportsFieldsByJSONName(t *testing.T) {
	var req model.ReportViolationRequest
	fields := bindJSON(t, `{"description":"no type at all"}`, &req)
	if _, ok := fields["type"]; !ok {
		t.Fatalf("errors = %v, want the json tag name, not the struct field", fields)
	}
}
