package openai

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go"

	ai "github.com/spetersoncode/toolflow"
)

// wrapError categorizes an OpenAI SDK error. Status codes and Retry-After
// headers are kept for the retry classifier.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		// Network errors are left to the retry heuristics
		return err
	}

	return ai.NewProviderError(ai.ProviderOpenAI, apiErr.StatusCode, parseRetryAfter(apiErr.Response), err)
}

// parseRetryAfter reads the Retry-After header as seconds or an HTTP date.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return 0
}
