package notifier

import (
	"CatalogAuth/internal/model"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const EventRecordRecovered = "refresh_record_recovered"

// WebhookNotifier posts audit events as JSON to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(webhookURL string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    webhookURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) NotifyRecovery(ctx context.Context, event model.RecoveryEvent) error {
	if event.Event == "" {
		event.Event = EventRecordRecovered
	}
	if event.TimeStamp.IsZero() {
		event.TimeStamp = time.Now().UTC()
	}

	jsonBody, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка преобразования в json: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса webhook: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := n.client.Do(request)
	if err != nil {
		return fmt.Errorf("ошибка отправки webhook: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook ответил статусом %d", response.StatusCode)
	}
	return nil
}
