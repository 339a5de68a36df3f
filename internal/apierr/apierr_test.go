package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  Kind
		wantMsg   string
		wantField string
	}{
		{
			name:      "validation list picks first meaningful entry",
			status:    http.StatusUnprocessableEntity,
			body:      `{"detail":[{"loc":["body","email"],"msg":"Field required","type":"missing"},{"loc":["body","password"],"msg":"Value error, password too short","type":"value_error"}]}`,
			wantKind:  KindValidation,
			wantMsg:   "password too short",
			wantField: "password",
		},
		{
			name:     "all field required on refresh cookie",
			status:   http.StatusUnprocessableEntity,
			body:     `{"detail":[{"loc":["cookie","refresh_token"],"msg":"Field required","type":"missing"}]}`,
			wantKind: KindSessionExpired,
			wantMsg:  sessionExpiredMsg,
		},
		{
			name:     "all field required elsewhere",
			status:   http.StatusUnprocessableEntity,
			body:     `{"detail":[{"loc":["body","email"],"msg":"Field required","type":"missing"}]}`,
			wantKind: KindValidation,
			wantMsg:  "Field required",
		},
		{
			name:     "entry without msg falls back to type",
			status:   http.StatusUnprocessableEntity,
			body:     `{"detail":[{"loc":["body","n"],"type":"int_parsing"}]}`,
			wantKind: KindValidation,
			wantMsg:  "int_parsing",
		},
		{
			name:     "empty list",
			status:   http.StatusBadRequest,
			body:     `{"detail":[]}`,
			wantKind: KindUnknown,
			wantMsg:  defaultMessage,
		},
		{
			name:     "single object",
			status:   http.StatusBadRequest,
			body:     `{"detail":{"msg":"Value error, config limit reached"}}`,
			wantKind: KindSingle,
			wantMsg:  "config limit reached",
		},
		{
			name:     "object without msg",
			status:   http.StatusBadRequest,
			body:     `{"detail":{"code":3}}`,
			wantKind: KindUnknown,
			wantMsg:  defaultMessage,
		},
		{
			name:     "plain string",
			status:   http.StatusUnauthorized,
			body:     `{"detail":"Invalid credentials"}`,
			wantKind: KindPlain,
			wantMsg:  "Invalid credentials",
		},
		{
			name:     "not json",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			wantKind: KindUnknown,
			wantMsg:  defaultMessage,
		},
		{
			name:     "no detail",
			status:   http.StatusInternalServerError,
			body:     `{"error":"x"}`,
			wantKind: KindUnknown,
			wantMsg:  defaultMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.status, []byte(tt.body))
			if got.Kind != tt.wantKind {
				t.Errorf("Parse() kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("Parse() message = %q, want %q", got.Message, tt.wantMsg)
			}
			if got.Status != tt.status {
				t.Errorf("Parse() status = %d, want %d", got.Status, tt.status)
			}
			if tt.wantField != "" {
				var field string
				for _, f := range got.Fields {
					if f.Msg != fieldRequired {
						field = f.Field()
						break
					}
				}
				if field != tt.wantField {
					t.Errorf("Parse() field = %q, want %q", field, tt.wantField)
				}
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	expired := Parse(http.StatusUnprocessableEntity, []byte(`{"detail":[{"loc":["cookie","refresh_token"],"msg":"Field required"}]}`))
	wrapped := fmt.Errorf("refreshing: %w", expired)

	if !IsSessionExpired(wrapped) {
		t.Error("IsSessionExpired() = false, want true")
	}
	if !IsStatus(wrapped, http.StatusUnprocessableEntity) {
		t.Error("IsStatus() = false, want true")
	}
	if got := UserMessage(wrapped); got != sessionExpiredMsg {
		t.Errorf("UserMessage() = %q, want %q", got, sessionExpiredMsg)
	}
	if got := UserMessage(errors.New("dial tcp: refused")); got != "dial tcp: refused" {
		t.Errorf("UserMessage() = %q, want plain error text", got)
	}
	if UserMessage(nil) != "" {
		t.Error("UserMessage(nil) should be empty")
	}
	if !Parse(http.StatusUnauthorized, nil).Unauthorized() {
		t.Error("Unauthorized() = false for 401")
	}
}
