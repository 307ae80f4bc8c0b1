package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/oslianyabel/basic-wa-bot/internal/observability"
	"github.com/oslianyabel/basic-wa-bot/internal/tracing"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v22.0"
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 3
)

// Config configures the Cloud API client
type Config struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
	Timeout       time.Duration
	// MaxRetries is the number of retries after the first attempt
	MaxRetries   uint64
	RetryBackoff time.Duration
	WordsLimit   int
	Logger       zerolog.Logger
}

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api returned status %d: %s", e.StatusCode, e.Body)
}

// Client sends messages through the WhatsApp Cloud API
type Client struct {
	http         *resty.Client
	messagesPath string
	maxRetries   uint64
	retryBackoff time.Duration
	wordsLimit   int
	logger       zerolog.Logger
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             TextBody `json:"text"`
}

type readReceipt struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// New creates a Cloud API client
func New(cfg Config) (*Client, error) {
	observability.EnsureRegistered()

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("phone number id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.WordsLimit <= 0 {
		cfg.WordsLimit = DefaultWordsLimit
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.AccessToken)

	return &Client{
		http:         httpClient,
		messagesPath: fmt.Sprintf("/%s/%s/messages", cfg.APIVersion, cfg.PhoneNumberID),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		wordsLimit:   cfg.WordsLimit,
		logger:       cfg.Logger.With().Str("component", "whatsapp").Logger(),
	}, nil
}

// SendText sends body to the user to and returns the outbound message ID
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	payload := textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             TextBody{Body: body},
	}

	var out sendResponse
	if err := c.post(ctx, payload, &out); err != nil {
		observability.RecordOutboundMessage("text", false)
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	observability.RecordOutboundMessage("text", true)

	if len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}

// MarkAsRead marks an inbound message as read
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	payload := readReceipt{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	}
	if err := c.post(ctx, payload, nil); err != nil {
		observability.RecordOutboundMessage("read", false)
		return fmt.Errorf("failed to mark message as read: %w", err)
	}
	observability.RecordOutboundMessage("read", true)
	return nil
}

// Notify sends text to userID, split into chunks when it exceeds the words
// limit. Chunks are sent in order; the first failure stops the rest.
func (c *Client) Notify(ctx context.Context, userID, text string) error {
	chunks := SplitMessage(text, c.wordsLimit)
	logger := tracing.LoggerFromContext(ctx, c.logger)
	if len(chunks) > 1 {
		logger.Warn().Int("chunks", len(chunks)).Msg("Reply split for exceeding the message length limit")
	}

	for i, chunk := range chunks {
		if _, err := c.SendText(ctx, userID, chunk); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, body interface{}, result interface{}) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req := c.http.R().SetContext(ctx).SetBody(body)
		if result != nil {
			req = req.SetResult(result)
		}

		resp, err := req.Post(c.messagesPath)
		if err != nil {
			if isRetryableNetErr(err) {
				return retry.RetryableError(err)
			}
			return err
		}

		if resp.IsError() {
			apiErr := &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
			if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500 {
				c.logger.Warn().Int("status", resp.StatusCode()).Msg("Retrying WhatsApp API call")
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}
		return nil
	})
}

// isRetryableNetErr reports whether a transport error may succeed on retry.
// Cancellation is final.
func isRetryableNetErr(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
