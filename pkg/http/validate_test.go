package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderRequest struct {
	Kind  string  `json:"kind" validate:"required,oneof=wind solar"`
	Units float64 `json:"units" validate:"gt=0"`
	Limit int     `query:"limit" default:"10" validate:"gte=1,lte=50"`
}

func bind(t *testing.T, method, target, body string) (orderRequest, []ValidationError) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	c := echo.New().NewContext(req, httptest.NewRecorder())

	var out orderRequest
	verr := ReadAndValidateRequest(c, &out)
	if verr == nil {
		return out, nil
	}
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	return out, errs
}

func TestReadAndValidateAppliesDefaults(t *testing.T) {
	got, errs := bind(t, http.MethodPost, "/", `{"kind":"wind","units":2}`)
	require.Empty(t, errs)
	assert.Equal(t, orderRequest{Kind: "wind", Units: 2, Limit: 10}, got)
}

func TestReadAndValidateDescribesFields(t *testing.T) {
	_, errs := bind(t, http.MethodPost, "/", `{"kind":"coal","units":0}`)
	require.Len(t, errs, 2)
	assert.Equal(t, ValidationError{
		Code:    "ERR_ONEOF",
		Field:   "kind",
		Message: "kind must be one of: wind, solar",
		Params:  map[string]interface{}{"options": []string{"wind", "solar"}},
	}, errs[0])
	assert.Equal(t, "ERR_GT", errs[1].Code)
	assert.Equal(t, "units", errs[1].Field)

	_, errs = bind(t, http.MethodGet, "/?limit=51", "")
	require.Len(t, errs, 3)
	assert.Equal(t, "kind is required", errs[0].Message)
	assert.Equal(t, "ERR_LTE", errs[2].Code)
	assert.Equal(t, "limit", errs[2].Field)
	assert.Equal(t, "50", errs[2].Params["max"])
}

func TestReadAndValidateMalformedBody(t *testing.T) {
	_, errs := bind(t, http.MethodPost, "/", `{"kind":`)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_UNKNOWN", errs[0].Code)
}
