// Package classifier calls the remote endpoint that turns free text into a
// schedule or a todo.
package classifier

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

	"sheetsync/internal/model"
)

// ErrMalformed marks a response that does not have the [kind, payload] shape.
var ErrMalformed = errors.New("malformed classifier response")

type Client struct {
	url  string
	loc  *time.Location
	http *http.Client
}

// NewClient returns a client for url. Schedule times without an explicit
// offset are read as wall-clock time in loc.
func NewClient(url string, loc *time.Location, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, loc: loc, http: httpClient}
}

type schedulePayload struct {
	DTSTART  string  `json:"DTSTART"`
	DTEND    string  `json:"DTEND"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// Classify posts {"text": text} and decodes the result pair.
func (c *Client) Classify(ctx context.Context, text string) (model.Classification, error) {
	data, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("classify status=%d body=%s", res.StatusCode, string(body))
	}
	return Decode(body, c.loc)
}

// Decode parses a classifier response body.
func Decode(body []byte, loc *time.Location) (model.Classification, error) {
	var payload struct {
		Result []json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(payload.Result) < 2 {
		return nil, fmt.Errorf("%w: result has %d elements", ErrMalformed, len(payload.Result))
	}
	var kind string
	if err := json.Unmarshal(payload.Result[0], &kind); err != nil {
		return nil, fmt.Errorf("%w: kind: %v", ErrMalformed, err)
	}

	if kind == "schedule" {
		var sc schedulePayload
		if err := json.Unmarshal(payload.Result[1], &sc); err != nil {
			return nil, fmt.Errorf("%w: schedule payload: %v", ErrMalformed, err)
		}
		if strings.TrimSpace(sc.Title) == "" {
			return nil, fmt.Errorf("%w: schedule without title", ErrMalformed)
		}
		start, err := model.ParseWallClock(sc.DTSTART, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: DTSTART: %v", ErrMalformed, err)
		}
		end, err := model.ParseWallClock(sc.DTEND, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: DTEND: %v", ErrMalformed, err)
		}
		return model.Schedule{Title: sc.Title, Start: start, End: end, DurationDays: sc.Duration}, nil
	}

	var title string
	if err := json.Unmarshal(payload.Result[1], &title); err != nil {
		return nil, fmt.Errorf("%w: todo title: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: todo without title", ErrMalformed)
	}
	todo := model.Todo{Title: title}
	if len(payload.Result) > 2 {
		_ = json.Unmarshal(payload.Result[2], &todo.Category)
	}
	return todo, nil
}
