package linkedin

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
)

// FetchRequestError marks a call that never left this service (bad input).
type FetchRequestError struct {
	Reason string
}

func (e *FetchRequestError) Error() string { return e.Reason }

// newFetchError reads the platform's error body and wraps it as a
// domain.FetchError so callers can surface the detail string.
func newFetchError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var ae apiError
	detail := ""
	if err := json.Unmarshal(body, &ae); err == nil {
		detail = strings.TrimSpace(ae.Message)
	}

	return &domain.FetchError{
		StatusCode: resp.StatusCode,
		Detail:     detail,
	}
}
