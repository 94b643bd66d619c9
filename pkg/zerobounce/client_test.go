package zerobounce

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantStatus string
	}{
		{
			name:       "valid_address",
			status:     http.StatusOK,
			body:       `{"address": "jane@acme.com", "status": "valid", "sub_status": "", "free_email": false, "mx_found": "true", "domain": "acme.com"}`,
			wantStatus: StatusValid,
		},
		{
			name:       "catch_all",
			status:     http.StatusOK,
			body:       `{"address": "info@acme.com", "status": "catch-all", "sub_status": "role_based_catch_all"}`,
			wantStatus: StatusCatchAll,
		},
		{
			name:    "auth_failure",
			status:  http.StatusUnauthorized,
			body:    `{"error": "invalid api key"}`,
			wantErr: "unexpected status 401",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/validate", r.URL.Path)
				assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
				assert.NotEmpty(t, r.URL.Query().Get("email"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			resp, err := client.Validate(context.Background(), "jane@acme.com")

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}
}

func TestValidateResponseHelpers(t *testing.T) {
	assert.True(t, (&ValidateResponse{SubStatus: "disposable"}).Disposable())
	assert.True(t, (&ValidateResponse{SubStatus: "toxic"}).Disposable())
	assert.False(t, (&ValidateResponse{SubStatus: ""}).Disposable())

	assert.True(t, (&ValidateResponse{SubStatus: "role_based"}).RoleBased())
	assert.True(t, (&ValidateResponse{SubStatus: "role_based_catch_all"}).RoleBased())
	assert.False(t, (&ValidateResponse{SubStatus: "disposable"}).RoleBased())
}
