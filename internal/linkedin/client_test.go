package linkedin_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	"github.com/100x-Engineers100/ugc-tracker/internal/linkedin"
	"github.com/stretchr/testify/require"
)

type fakeHTTP struct {
	lastReq *http.Request
	resp    *http.Response
	err     error
}

func (f *fakeHTTP) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestClient_FetchPosts(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := &fakeHTTP{resp: jsonResponse(200, `{"elements":[]}`)}
		c := linkedin.NewClient("https://example.test", 5*time.Second, f)

		err := c.FetchPosts(context.Background(), "abc123", `li_at=tok; JSESSIONID="csrf-1"`)
		require.NoError(t, err)

		require.Contains(t, f.lastReq.URL.Path, "/voyager/api/identity/profiles/abc123/posts")
		require.Equal(t, `li_at=tok; JSESSIONID="csrf-1"`, f.lastReq.Header.Get("Cookie"))
		require.Equal(t, "csrf-1", f.lastReq.Header.Get("Csrf-Token"))
	})

	t.Run("platform error carries detail", func(t *testing.T) {
		f := &fakeHTTP{resp: jsonResponse(401, `{"message":"CSRF check failed","code":401}`)}
		c := linkedin.NewClient("https://example.test", 5*time.Second, f)

		err := c.FetchPosts(context.Background(), "abc123", "li_at=tok")
		require.Error(t, err)

		var fe *domain.FetchError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, 401, fe.StatusCode)
		require.Equal(t, "CSRF check failed", fe.Detail)
		require.Equal(t, "CSRF check failed", domain.DetailOrDefault(err, "generic"))
	})

	t.Run("platform error without body falls back", func(t *testing.T) {
		f := &fakeHTTP{resp: jsonResponse(500, "")}
		c := linkedin.NewClient("https://example.test", 5*time.Second, f)

		err := c.FetchPosts(context.Background(), "abc123", "li_at=tok")
		var fe *domain.FetchError
		require.ErrorAs(t, err, &fe)
		require.Empty(t, fe.Detail)
		require.Equal(t, "generic", domain.DetailOrDefault(err, "generic"))
	})

	t.Run("transport error wraps", func(t *testing.T) {
		f := &fakeHTTP{err: errors.New("connection refused")}
		c := linkedin.NewClient("https://example.test", 5*time.Second, f)

		err := c.FetchPosts(context.Background(), "abc123", "li_at=tok")
		require.Error(t, err)
		require.Contains(t, err.Error(), "abc123")
	})

	t.Run("missing inputs rejected locally", func(t *testing.T) {
		f := &fakeHTTP{}
		c := linkedin.NewClient("https://example.test", 5*time.Second, f)

		require.Error(t, c.FetchPosts(context.Background(), "", "li_at=tok"))
		require.Error(t, c.FetchPosts(context.Background(), "abc123", ""))
		require.Nil(t, f.lastReq)
	})
}
