package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"jobalertbot/internal/alert"
)

// HTTPExecutor posts the job snapshot to the external search-execution
// service. The service answers 202 and delivers results later through
// its own callback channel; this call is only the kick.
type HTTPExecutor struct {
	endpoint string
	http     *http.Client
}

func NewHTTPExecutor(endpoint string, timeout time.Duration) (*HTTPExecutor, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("executor endpoint is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPExecutor{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

type triggerPayload struct {
	AlertID  string               `json:"alert_id"`
	UserID   int64                `json:"user_id"`
	ChatID   int64                `json:"chat_id"`
	Criteria alert.SearchCriteria `json:"criteria"`
}

func (e *HTTPExecutor) Trigger(ctx context.Context, snapshot alert.Alert) error {
	b, err := json.Marshal(triggerPayload{
		AlertID:  snapshot.ID,
		UserID:   snapshot.UserID,
		ChatID:   snapshot.ChatID,
		Criteria: snapshot.Criteria,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("search executor: http %d", resp.StatusCode)
	}
	return nil
}
