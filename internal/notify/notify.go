package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SendWorkflowDone posts a short summary of a finished workflow run to the
// configured endpoint. An empty endpoint disables notifications.
func SendWorkflowDone(ctx context.Context, client *http.Client, endpoint, status string, steps int) error {
	if endpoint == "" {
		return nil
	}
	message := fmt.Sprintf("workflow finished: status=%s steps=%d", status, steps)
	return Send(ctx, client, endpoint, message)
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
