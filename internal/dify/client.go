// Package dify calls a Dify chat app in blocking mode.
package dify

import (
	"bufio"
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

// DefaultBaseURL is the hosted Dify API.
const DefaultBaseURL = "https://api.dify.ai/v1"

type Client struct {
	baseURL string
	apiKey  string
	user    string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, user: "sheetsync", http: httpClient}
}

// Ask sends query with the current time as the `now` input and returns the
// answer text.
func (c *Client) Ask(ctx context.Context, query string, now time.Time) (string, error) {
	payload := map[string]any{
		"inputs":        map[string]string{"now": now.Format("2006-01-02 15:04:05")},
		"query":         query,
		"user":          c.user,
		"response_mode": "blocking",
	}
	data, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat-messages", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("dify: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("dify: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return "", fmt.Errorf("dify status=%d body=%s", res.StatusCode, string(body))
	}
	return extractAnswer(body)
}

// extractAnswer accepts a plain JSON body or server-sent `data:` lines, in
// which case the last event carrying an answer wins.
func extractAnswer(body []byte) (string, error) {
	var msg struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(body, &msg); err == nil {
		if msg.Answer == "" {
			return "", errors.New("dify: empty answer")
		}
		return msg.Answer, nil
	}
	answer := ""
	s := bufio.NewScanner(bytes.NewReader(body))
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		_, rest, found := strings.Cut(line, "data:")
		if !found || strings.TrimSpace(rest) == "" {
			continue
		}
		var ev struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(rest)), &ev); err == nil && ev.Answer != "" {
			answer = ev.Answer
		}
	}
	if answer == "" {
		return "", errors.New("dify: no answer in response")
	}
	return answer, nil
}
