package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/planner-alerts/models"
)

const (
	DefaultExpoBaseURL = "https://exp.host/--/api/v2"
	expoBatchLimit     = 100
)

// Ticket statuses and the error code for tokens that should be forgotten.
const (
	TicketOK                 = "ok"
	TicketError              = "error"
	ErrorDeviceNotRegistered = "DeviceNotRegistered"
)

// Message is a single push notification for the Expo push API.
type Message struct {
	To        string                 `json:"to"`
	Title     string                 `json:"title,omitempty"`
	Body      string                 `json:"body,omitempty"`
	Sound     string                 `json:"sound,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Priority  string                 `json:"priority,omitempty"`
	ChannelID string                 `json:"channelId,omitempty"`
}

// Ticket is Expo's receipt for one message, in the order the messages were sent.
type Ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

// DeviceNotRegistered reports whether the token the ticket belongs to is dead.
func (t Ticket) DeviceNotRegistered() bool {
	return t.Status == TicketError && t.Details.Error == ErrorDeviceNotRegistered
}

// ExpoClient issues Expo push tokens and sends notifications through them.
type ExpoClient struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

// NewExpoClient returns a client for the public Expo endpoint.
func NewExpoClient(accessToken string) *ExpoClient {
	return &ExpoClient{
		BaseURL:     DefaultExpoBaseURL,
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

// NewMessages builds one message per token with the defaults used for alerts.
func NewMessages(tokens []string, title, body string, data map[string]interface{}) []Message {
	messages := make([]Message, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, Message{
			To:        token,
			Title:     title,
			Body:      body,
			Sound:     "default",
			Data:      data,
			Priority:  "high",
			ChannelID: DefaultChannel.ID,
		})
	}
	return messages
}

// IssueToken exchanges a native token for an ExponentPushToken scoped to the project.
func (c *ExpoClient) IssueToken(ctx context.Context, req TokenRequest) (string, error) {
	if req.ProjectID == "" {
		return "", ErrMissingProjectID
	}
	kind := "fcm"
	if req.Platform == models.PlatformIOS {
		kind = "apns"
	}
	body := map[string]string{
		"projectId":   req.ProjectID,
		"deviceToken": req.DeviceToken,
		"type":        kind,
	}
	var out struct {
		Data struct {
			ExpoPushToken string `json:"expoPushToken"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/push/getExpoPushToken", body, &out); err != nil {
		return "", err
	}
	if out.Data.ExpoPushToken == "" {
		return "", errors.New("expo returned an empty push token")
	}
	return out.Data.ExpoPushToken, nil
}

// Send delivers messages in batches of 100. A failed batch does not stop the rest; the
// returned tickets line up with messages and a failed batch leaves error tickets.
func (c *ExpoClient) Send(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	tickets := make([]Ticket, 0, len(messages))
	var errs []error
	for i := 0; i < len(messages); i += expoBatchLimit {
		end := i + expoBatchLimit
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[i:end]

		var out struct {
			Data []Ticket `json:"data"`
		}
		err := c.post(ctx, "/push/send", batch, &out)
		if err == nil && len(out.Data) != len(batch) {
			err = fmt.Errorf("expo returned %d tickets for %d messages", len(out.Data), len(batch))
		}
		if err != nil {
			zap.S().Errorw("failed to send expo push batch", "first", i, "last", end-1, "error", err)
			errs = append(errs, err)
			for range batch {
				tickets = append(tickets, Ticket{Status: TicketError, Message: err.Error()})
			}
			continue
		}
		tickets = append(tickets, out.Data...)
	}
	zap.S().Infow("sent push notifications via expo", "count", len(messages), "failed_batches", len(errs))
	return tickets, errors.Join(errs...)
}

func (c *ExpoClient) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal expo request: %w", err)
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultExpoBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(base, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create expo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send expo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expo API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode expo response: %w", err)
	}
	return nil
}
