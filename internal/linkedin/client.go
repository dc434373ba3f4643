package linkedin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://www.linkedin.com"

// HTTPClient interface for HTTP operations (allows mocking in tests).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client triggers per-user post ingestion against LinkedIn using the
// operator-supplied session cookie. The cookie is forwarded as-is on every
// call and never stored.
type Client struct {
	baseURL    string
	httpClient HTTPClient
}

func NewClient(baseURL string, timeout time.Duration, httpClient HTTPClient) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// apiError is the platform's error shape; message is the human-readable
// detail surfaced to the operator when present.
type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// FetchPosts fetches the member's recent posts. The response body is
// ingested upstream; this service only needs the outcome.
func (c *Client) FetchPosts(ctx context.Context, userID, cookie string) error {
	if strings.TrimSpace(userID) == "" {
		return &FetchRequestError{Reason: "user id is required"}
	}
	if strings.TrimSpace(cookie) == "" {
		return &FetchRequestError{Reason: "linkedin cookie is required"}
	}

	url := fmt.Sprintf("%s/voyager/api/identity/profiles/%s/posts?count=50", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cookie", cookie)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	if tok := csrfFromCookie(cookie); tok != "" {
		req.Header.Set("Csrf-Token", tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch posts for %s: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil
	}

	return newFetchError(resp)
}

// csrfFromCookie extracts the JSESSIONID value; LinkedIn expects it echoed
// as the Csrf-Token header.
func csrfFromCookie(cookie string) string {
	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "JSESSIONID="); ok {
			return strings.Trim(v, `"`)
		}
	}
	return ""
}
