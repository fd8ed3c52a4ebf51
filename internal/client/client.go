package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/skolist/paperdraft/internal/auth"
)

const generatePath = "/api/v1/generate/questions"

// HTTPClient реализует Client через HTTP API бэкенда генерации.
type HTTPClient struct {
	baseURL    string
	tokens     auth.TokenProvider
	httpClient *http.Client
}

// NewHTTPClient создаёт нового HTTP клиента бэкенда генерации.
// Токен для заголовка Authorization берется у tokens перед каждым запросом.
func NewHTTPClient(baseURL string, tokens auth.TokenProvider) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{},
	}
}

// GenerateQuestions запускает генерацию вопросов для активности.
// Возвращает nil в случае успеха; сами вопросы бэкенд пишет в базу,
// клиент их не ждет.
func (c *HTTPClient) GenerateQuestions(ctx context.Context, req GenerateRequest) error {
	ctx, cancelFunc := context.WithTimeout(ctx, timeoutGenerate)
	defer cancelFunc()

	_, err := c.doRequest(ctx, generatePath, req)
	if err != nil {
		return err
	}

	return nil
}

func (c *HTTPClient) doRequest(
	ctx context.Context,
	path string,
	payload interface{},
) (json.RawMessage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Detail != "" {
			return nil, fmt.Errorf("generation api error: %s", apiErr.Detail)
		}
		return nil, fmt.Errorf("generation api error: %s", resp.Status)
	}

	return data, nil
}
