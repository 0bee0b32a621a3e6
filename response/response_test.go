package response

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricer/xerrors"
)

func TestError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
		wantType   string
	}{
		{"invalid arg", xerrors.ErrInvalidInput.WithDetail("strike_price is required"), http.StatusBadRequest, 400002, "InvalidArg"},
		{"unavailable", xerrors.ErrCircuitOpen, http.StatusServiceUnavailable, 503002, "Unavailable"},
		{"deadline", fmt.Errorf("simulate: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, http.StatusGatewayTimeout, ""},
		{"plain", errors.New("secret internals"), http.StatusInternalServerError, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body Body
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Code != tt.wantCode || body.Type != tt.wantType {
				t.Errorf("body = %+v", body)
			}
			if tt.name == "plain" && body.Detail != "" {
				t.Errorf("internal error leaked: %q", body.Detail)
			}
		})
	}
}

func TestSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Success(c, map[string]float64{"price": 10.45})

	var body struct {
		Data map[string]float64 `json:"data"`
		Msg  string             `json:"msg"`
		Code int                `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || body.Code != 0 || body.Data["price"] != 10.45 {
		t.Errorf("status %d body %+v", w.Code, body)
	}
}
