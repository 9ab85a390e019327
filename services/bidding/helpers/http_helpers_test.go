package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bidflow/internal/biddingerrors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToHTTP(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{biddingerrors.ErrAuctionNotFound, http.StatusNotFound},
		{biddingerrors.ErrNoBids, http.StatusNotFound},
		{biddingerrors.ErrAuctionNotActive, http.StatusConflict},
		{biddingerrors.ErrBidTooLow, http.StatusBadRequest},
		{biddingerrors.ErrInvalidTimeRange, http.StatusBadRequest},
		{biddingerrors.ErrOwnBid, http.StatusForbidden},
		{biddingerrors.ErrAuctionExists, http.StatusConflict},
		{fmt.Errorf("service: %w", biddingerrors.ErrUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, message := MapErrorToHTTP(tt.err)
			require.Equal(t, tt.status, status)
			require.NotEmpty(t, message)
		})
	}
}

func TestHandleServiceError_BidRejection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	err := fmt.Errorf("service: %w", &biddingerrors.BidError{
		Reason:       biddingerrors.ErrBidTooLow,
		Status:       "active",
		CurrentPrice: decimal.NewFromInt(200),
	})
	HandleServiceError(c, "PlaceBidHandler", err, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Message string       `json:"message"`
		Details BidRejection `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "bid amount too low", resp.Message)
	require.Equal(t, "active", resp.Details.AuctionStatus)
	require.True(t, resp.Details.CurrentPrice.Equal(decimal.NewFromInt(200)))
}
