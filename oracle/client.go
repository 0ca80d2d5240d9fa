package oracle

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/greenaudit/greenwash_backend/config"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	temperature = 0.2
	maxTokens   = 2500
)

// Client talks to an OpenAI compatible chat completions endpoint. It never retries.
type Client struct {
	httpc  *resty.Client
	apiKey string
	model  string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func New(cfg config.OracleConfig, logger logrus.FieldLogger) *Client {
	httpc := resty.New()
	httpc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	httpc.SetHeader("Content-Type", "application/json")
	httpc.SetRetryCount(0)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	httpc.SetTimeout(timeout)
	if logger != nil {
		httpc.SetLogger(logger)
	}
	return &Client{
		httpc:  httpc,
		apiKey: strings.TrimSpace(cfg.APIKey),
		model:  cfg.Model,
	}
}

func (c *Client) Ready() error {
	if c.apiKey == "" {
		return utils.Errorf(utils.ErrConfiguration, "OPENAI_API_KEY is not configured")
	}
	return nil
}

// Complete returns the raw message content of the first choice.
func (c *Client) Complete(ctx context.Context, systemPrompt string, userPrompt string) (string, error) {
	if err := c.Ready(); err != nil {
		return "", err
	}
	var out chatResponse
	var apiErr apiError
	resp, err := c.httpc.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			Temperature:    temperature,
			MaxTokens:      maxTokens,
			ResponseFormat: responseFormat{Type: "json_object"},
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", utils.Wrap(utils.ErrOracleFailure, err, "chat completion request")
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return "", utils.Errorf(utils.ErrOracleFailure, "chat completion status %d: %s", resp.StatusCode(), msg)
	}
	if len(out.Choices) == 0 {
		return "", utils.Errorf(utils.ErrOracleFailure, "chat completion returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
