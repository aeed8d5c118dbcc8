package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestRespondErrorMapsDomainClasses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("batch 4: %w", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("approve: %w", shared.ErrInvalidTransition), http.StatusConflict},
		{fmt.Errorf("withdraw: %w", shared.ErrInsufficientQuantity), http.StatusUnprocessableEntity},
		{fmt.Errorf("sell: %w", shared.ErrBelowMinimumPrice), http.StatusUnprocessableEntity},
		{fmt.Errorf("qty: %w", shared.ErrValidation), http.StatusBadRequest},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

func TestBindValidates(t *testing.T) {
	v := validator.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))
	var body quantityRequest
	err := Bind(req, v, &body)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "Quantity")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":3}`))
	require.NoError(t, Bind(req, v, &body))
	require.Equal(t, 3, body.Quantity)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":3}`))
	require.ErrorIs(t, Bind(req, v, &body), shared.ErrValidation)
}

func TestBindEmptyBodyFallsThroughToValidation(t *testing.T) {
	v := validator.New()

	var body quantityRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	require.ErrorIs(t, Bind(req, v, &body), shared.ErrValidation)

	var optional struct {
		Reason string `json:"reason" validate:"max=10"`
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	require.NoError(t, Bind(req, v, &optional))
}
