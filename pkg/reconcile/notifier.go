package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HTTPNotifier hands a confirmed payment off to the invoice/email service
// with a single POST carrying the intent id.
type HTTPNotifier struct {
	url        string
	httpClient *http.Client
}

func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (n *HTTPNotifier) PaymentConfirmed(ctx context.Context, intentID uuid.UUID) error {
	body, err := json.Marshal(struct {
		PaymentID string `json:"payment_id"`
	}{PaymentID: intentID.String()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("confirmation endpoint returned %v", resp.StatusCode)
	}
	return nil
}

// NopNotifier is used when no confirmation endpoint is configured.
type NopNotifier struct {
	logger *zap.Logger
}

func NewNopNotifier(logger *zap.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

func (n *NopNotifier) PaymentConfirmed(ctx context.Context, intentID uuid.UUID) error {
	n.logger.Info("confirmation notification skipped, no endpoint configured",
		zap.String("intent", intentID.String()))
	return nil
}
