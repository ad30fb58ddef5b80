package autotopup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tradielink/marketplace/pkg/clients"
)

func TestPaymentClient_ChargeForCredits(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	httpClient := clients.NewMockHTTPClientI(ctrl)
	client := NewPaymentClient("http://localhost:8082", httpClient)
	ctx := context.Background()

	t.Run("successful charge", func(t *testing.T) {
		resp, _ := json.Marshal(ChargeResult{
			TransactionID: "pay-1",
			Credits:       100,
			Status:        "succeeded",
		})
		httpClient.EXPECT().
			Post("http://localhost:8082/api/payments/charge", gomock.Any(), gomock.Any()).
			DoAndReturn(func(url string, headers http.Header, body []byte) (int, []byte, http.Header, error) {
				assert.Equal(t, "application/json", headers.Get("Content-Type"))
				assert.Equal(t, "key-1", headers.Get("Idempotency-Key"))

				var req chargeRequest
				require.NoError(t, json.Unmarshal(body, &req))
				assert.Equal(t, 1, req.UserID)
				assert.Equal(t, "standard", req.PackageType)

				return http.StatusOK, resp, nil, nil
			})

		result, err := client.ChargeForCredits(ctx, 1, "standard", "key-1")
		require.NoError(t, err)
		assert.Equal(t, "pay-1", result.TransactionID)
		assert.Equal(t, 100, result.Credits)
	})

	t.Run("sends the supplied idempotency key verbatim", func(t *testing.T) {
		resp, _ := json.Marshal(ChargeResult{TransactionID: "pay-2", Credits: 50, Status: "succeeded"})
		var keys []string
		httpClient.EXPECT().
			Post(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(url string, headers http.Header, body []byte) (int, []byte, http.Header, error) {
				keys = append(keys, headers.Get("Idempotency-Key"))
				return http.StatusOK, resp, nil, nil
			}).
			Times(2)

		_, err := client.ChargeForCredits(ctx, 1, "standard", "key-2")
		require.NoError(t, err)
		_, err = client.ChargeForCredits(ctx, 1, "standard", "key-2")
		require.NoError(t, err)
		assert.Equal(t, []string{"key-2", "key-2"}, keys)
	})

	t.Run("non-200 is a decline", func(t *testing.T) {
		httpClient.EXPECT().
			Post(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(http.StatusPaymentRequired, []byte(`{"error":"card declined"}`), nil, nil)

		result, err := client.ChargeForCredits(ctx, 1, "standard", "key-1")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrPaymentDeclined)
	})

	t.Run("failed status is a decline", func(t *testing.T) {
		resp, _ := json.Marshal(ChargeResult{TransactionID: "pay-3", Status: "failed"})
		httpClient.EXPECT().
			Post(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(http.StatusOK, resp, nil, nil)

		result, err := client.ChargeForCredits(ctx, 1, "standard", "key-1")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrPaymentDeclined)
	})

	t.Run("transport error is not a decline", func(t *testing.T) {
		httpClient.EXPECT().
			Post(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(0, nil, nil, errors.New("connection refused"))

		result, err := client.ChargeForCredits(ctx, 1, "standard", "key-1")
		assert.Nil(t, result)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrPaymentDeclined)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		result, err := client.ChargeForCredits(canceled, 1, "standard", "key-1")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
