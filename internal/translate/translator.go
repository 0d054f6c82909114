// Package translate wraps the Cloud Translation v2 REST API.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEndpoint is the public Cloud Translation v2 URL.
const DefaultEndpoint = "https://translation.googleapis.com/language/translate/v2"

// Config selects the endpoint and the fixed language pair.
type Config struct {
	Endpoint  string
	APIKey    string
	Source    string
	Target    string
	CacheSize int
}

// Translator translates text from Source to Target, remembering recent
// results.
type Translator struct {
	cfg   Config
	http  *http.Client
	cache *lru.Cache[string, string]
}

func New(cfg Config, httpClient *http.Client) (*Translator, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cache, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("translate cache: %w", err)
	}
	return &Translator{cfg: cfg, http: httpClient, cache: cache}, nil
}

func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	if out, ok := t.cache.Get(text); ok {
		return out, nil
	}
	body, _ := json.Marshal(map[string]string{
		"q":      text,
		"source": t.cfg.Source,
		"target": t.cfg.Target,
		"format": "text",
	})
	endpoint := t.cfg.Endpoint
	if t.cfg.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(t.cfg.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return "", fmt.Errorf("translate status=%d body=%s", res.StatusCode, string(raw))
	}
	var payload struct {
		Data struct {
			Translations []struct {
				TranslatedText string `json:"translatedText"`
			} `json:"translations"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode translation: %w", err)
	}
	if len(payload.Data.Translations) == 0 {
		return "", fmt.Errorf("translate: empty response")
	}
	out := html.UnescapeString(payload.Data.Translations[0].TranslatedText)
	t.cache.Add(text, out)
	return out, nil
}
