package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-sharing/internal/models"
)

// HTTPDispatcher posts every match as JSON to a driver app backend.
type HTTPDispatcher struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPDispatcher(endpoint string) *HTTPDispatcher {
	return &HTTPDispatcher{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (d *HTTPDispatcher) Notify(ctx context.Context, res models.MatchResult) error {
	b, err := json.Marshal(Message{Type: "match", Match: res})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook %s: status %d", d.Endpoint, resp.StatusCode)
	}
	return nil
}
