package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Responder — интерфейс автоответчика: один вопрос — один ответ. Для сервиса
// это чёрный ящик (в тестах подменяется моком).
type Responder interface {
	Respond(ctx context.Context, question string) (string, error)
}

// Func адаптирует функцию к Responder (для тестов).
type Func func(ctx context.Context, question string) (string, error)

func (f Func) Respond(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// Client вызывает responder-service по HTTP (POST {base}/respond).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type respondRequest struct {
	Question string `json:"question"`
}

type respondResponse struct {
	Answer string `json:"answer"`
}

func (c *Client) Respond(ctx context.Context, question string) (string, error) {
	body, err := json.Marshal(respondRequest{Question: question})
	if err != nil {
		return "", fmt.Errorf("responder: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/respond", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("responder: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("responder: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("responder: status %d", resp.StatusCode)
	}
	var out respondResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("responder: decode: %w", err)
	}
	return out.Answer, nil
}
