package autotopup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tradielink/marketplace/pkg/clients"
)

var ErrPaymentDeclined = errors.New("payment gateway declined the charge")

// ChargeResult is the gateway's answer to a successful charge.
type ChargeResult struct {
	TransactionID string `json:"transaction_id"`
	Credits       int    `json:"credits"`
	Status        string `json:"status"`
}

type chargeRequest struct {
	UserID      int    `json:"user_id"`
	PackageType string `json:"package_type"`
}

type PaymentClientI interface {
	ChargeForCredits(ctx context.Context, userID int, packageType, idempotencyKey string) (*ChargeResult, error)
}

// PaymentClient talks to the external payment gateway. The caller supplies
// one idempotency key per logical charge; retried requests reuse it, so a
// charge whose response was lost in transit cannot double-charge.
type PaymentClient struct {
	url    string
	client clients.HTTPClientI
}

func NewPaymentClient(url string, client clients.HTTPClientI) *PaymentClient {
	return &PaymentClient{
		url:    url,
		client: client,
	}
}

func (c *PaymentClient) ChargeForCredits(ctx context.Context, userID int, packageType, idempotencyKey string) (*ChargeResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	body, err := json.Marshal(chargeRequest{UserID: userID, PackageType: packageType})
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Idempotency-Key", idempotencyKey)

	statusCode, respBody, _, err := c.client.Post(c.url+"/api/payments/charge", headers, body)
	if err != nil {
		return nil, fmt.Errorf("payment gateway request failed: %w", err)
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrPaymentDeclined, statusCode)
	}

	var result ChargeResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse payment gateway response: %w", err)
	}
	if result.Status != "succeeded" {
		return nil, fmt.Errorf("%w: status %q", ErrPaymentDeclined, result.Status)
	}

	return &result, nil
}
