package feishu

import (
	"fmt"
	"net/http"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
)

// APIError is a non-zero code returned by the Lark open platform.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lark api error code=%d msg=%s", e.Code, e.Msg)
}

// Options configure the Lark client.
type Options struct {
	AppID     string
	AppSecret string
	// BaseURL overrides the open platform host, e.g. for Lark international
	// or a test server.
	BaseURL string
	Timeout time.Duration
}

// NewClient builds a Lark SDK client with tenant token caching.
func NewClient(opts Options) *lark.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	clientOpts := []lark.ClientOptionFunc{
		lark.WithReqTimeout(timeout),
		lark.WithHttpClient(&http.Client{Timeout: timeout}),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, lark.WithOpenBaseUrl(opts.BaseURL))
	}
	return lark.NewClient(opts.AppID, opts.AppSecret, clientOpts...)
}
