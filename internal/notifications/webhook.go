package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aurumlab/gsr-backend/internal/httputil"
)

// Sender pushes watch alerts to a chat webhook. Every message is also
// echoed to the console, so a missing webhook URL just means console-only.
type Sender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewSender(webhookURL, botName string) *Sender {
	if botName == "" {
		botName = "GSRWatch"
	}
	return &Sender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}

// RatioAlert announces the gold/silver ratio crossing a watch threshold.
func (s *Sender) RatioAlert(date string, ratio, threshold float64, crossedAbove bool) {
	dir := "above"
	if !crossedAbove {
		dir = "below"
	}
	s.Send(fmt.Sprintf("Gold/silver ratio crossed %s %.2f: %.2f on %s", dir, threshold, ratio, date))
}

// RefreshReport summarizes a scheduled refresh run.
func (s *Sender) RefreshReport(start, end string, fetchedDays int, fetchErr error) {
	if fetchErr != nil {
		s.Send(fmt.Sprintf("Refresh %s..%s fetched %d days, then stopped: %v", start, end, fetchedDays, fetchErr))
		return
	}
	if fetchedDays > 0 {
		s.Send(fmt.Sprintf("Refresh %s..%s fetched %d new days", start, end, fetchedDays))
	}
}

func (s *Sender) Send(msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.botName, msg)
	fmt.Printf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), formatted)

	if s.webhookURL == "" {
		return
	}

	payload := s.formatPayload(formatted)
	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Printf("[NOTIFY ERROR] marshal: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		fmt.Printf("[NOTIFY ERROR] Failed to send notification after retries: %v\n", err)
		return
	}
	resp.Body.Close()
}

// formatPayload shapes the JSON body for the webhook host. Discord wants
// "content", everything else gets the Slack-compatible "text" form.
func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}
