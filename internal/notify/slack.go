package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// slackNotifier posts to a Slack incoming-webhook URL. The service URL's
// path after the host supplies the webhook path segments
// (slack://hooks.example.com/services/T000/B000/XXX).
type slackNotifier struct {
	httpClient *http.Client
	webhookURL string
}

func newSlackNotifier(u *url.URL) *slackNotifier {
	target := url.URL{Scheme: "https", Host: u.Host, Path: u.Path}
	return &slackNotifier{
		httpClient: &http.Client{Timeout: notifyHTTPTimeout},
		webhookURL: target.String(),
	}
}

func (s *slackNotifier) Send(ctx context.Context, msg Message) error {
	payload := struct {
		Text string `json:"text"`
	}{Text: fmt.Sprintf("*%s*\n%s", msg.Title, msg.Body)}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: slack responded with status %d", resp.StatusCode)
	}
	return nil
}
