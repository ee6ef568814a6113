package sdkrunner

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	maxRunRetries      = 3
	retryDelayCap      = 2 * time.Minute
	retryBaseDelay     = 1 * time.Second
	defaultRetryAfter  = 30 * time.Second
)

var retryableNetworkCodes = []string{
	"ECONNRESET", "ETIMEDOUT", "ENOTFOUND", "ECONNREFUSED", "EAI_AGAIN",
}

// classifyRetryable reports whether err should be retried, and if it
// carries a 429 with a retry-after hint, that delay.
func classifyRetryable(err error) (retryable bool, retryAfter time.Duration) {
	if err == nil {
		return false, 0
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return true, parseRetryAfter(apiErr)
		case apiErr.HTTPStatusCode >= 500 && apiErr.HTTPStatusCode < 600:
			return true, 0
		case apiErr.HTTPStatusCode >= 400:
			return false, 0
		}
	}

	msg := err.Error()
	for _, code := range retryableNetworkCodes {
		if strings.Contains(msg, code) {
			return true, 0
		}
	}
	return false, 0
}

// parseRetryAfter best-effort reads a Retry-After-style hint off an
// OpenAI-style API error message; falls back to the default when absent.
func parseRetryAfter(apiErr *openai.APIError) time.Duration {
	if apiErr == nil {
		return defaultRetryAfter
	}
	msg := apiErr.Message
	idx := strings.Index(msg, "retry-after")
	if idx < 0 {
		return defaultRetryAfter
	}
	rest := msg[idx:]
	var digits strings.Builder
	for _, r := range rest {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() == 0 {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(digits.String())
	if err != nil {
		return defaultRetryAfter
	}
	return clampDelay(time.Duration(secs) * time.Second)
}

func clampDelay(d time.Duration) time.Duration {
	if d > retryDelayCap {
		return retryDelayCap
	}
	if d < 0 {
		return 0
	}
	return d
}

func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay * time.Duration(1<<uint(attempt))
	return clampDelay(d)
}

// abortableSleep sleeps for d or returns early (with ctx.Err()) if ctx is
// cancelled, so a session abort interrupts a pending retry immediately.
func abortableSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
