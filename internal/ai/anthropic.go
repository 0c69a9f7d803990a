package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AnthropicClient talks to the Anthropic messages API (or a relay that
// mirrors it). It implements Provider and StreamProvider.
type AnthropicClient struct {
	BaseURL   string
	APIKey    string
	Version   string
	Model     string
	MaxTokens int
	Client    *http.Client

	// streamClient has no global timeout; the context bounds streaming calls.
	streamClient *http.Client
}

type messagesReq struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
}

type messagesResp struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropicClient(baseURL, apiKey, version, model string, maxTokens int) *AnthropicClient {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if version == "" {
		version = "2023-06-01"
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Version:      version,
		Model:        model,
		MaxTokens:    maxTokens,
		Client:       &http.Client{Timeout: 90 * time.Second},
		streamClient: &http.Client{},
	}
}

func (c *AnthropicClient) newRequest(ctx context.Context, messages []Message, stream bool) (*http.Request, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	model := strings.TrimSpace(c.Model)
	if model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	b, err := json.Marshal(messagesReq{
		Model:     model,
		MaxTokens: c.MaxTokens,
		Messages:  messages,
		Stream:    stream,
	})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", c.Version)
	return req, nil
}

// Complete performs a non-streaming call and returns the reply text.
func (c *AnthropicClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req, err := c.newRequest(ctx, messages, false)
	if err != nil {
		return "", err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp)
	}

	var decoded messagesResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Content) == 0 {
		return "", errors.New("anthropic: empty response")
	}
	return decoded.Content[0].Text, nil
}

// OpenStream performs a streaming call and hands back the event-stream body
// after the status line has been checked. The caller owns closing it and
// decoding it with a Decoder.
func (c *AnthropicClient) OpenStream(ctx context.Context, messages []Message) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, messages, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := statusError(resp)
		_ = resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// statusError surfaces provider-supplied detail from a non-success response,
// falling back to the raw status line. Detail lookup order matches the relay
// contract: error.message, then details, then a bare error string.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))

	var decoded struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
		Details string `json:"details,omitempty"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil {
		if decoded.Error != nil && decoded.Error.Message != "" {
			return fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, decoded.Error.Message)
		}
		if decoded.Details != "" {
			return fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, decoded.Details)
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("anthropic: %s", resp.Status)
}
