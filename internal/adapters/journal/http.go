// Package journal sends formatted journal entries to the host journal
// endpoint over HTTP.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

type entryPayload struct {
	Message           string `json:"message"`
	UseLLM            bool   `json:"useLLM"`
	WantsJournalEntry bool   `json:"wantsJournalEntry"`
	WantsR1Response   bool   `json:"wantsR1Response"`
}

type HTTPTransport struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPTransport(endpoint string) *HTTPTransport {
	return &HTTPTransport{
		endpoint:   endpoint,
		httpClient: &http.Client{},
	}
}

// Deliver posts one journal entry. The caller's context carries the attempt
// timeout; the entry is written silently, with no response expected back.
func (t *HTTPTransport) Deliver(ctx context.Context, message string) error {
	payload := entryPayload{
		Message:           message,
		UseLLM:            true,
		WantsJournalEntry: true,
		WantsR1Response:   false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Msg("Error marshalling journal payload")
		return fmt.Errorf("internal error")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("Error connecting to journal endpoint")
		return fmt.Errorf("journal connection error")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("journal error: %d - %s", resp.StatusCode, string(raw))
	}
	return nil
}
