package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindRateLimited        Kind = "rate_limited"
	KindInvalidScale       Kind = "invalid_scale"
	KindInvalidStep        Kind = "invalid_step"
	KindInsufficientMargin Kind = "insufficient_margin"
	KindOneWayMode         Kind = "one_way_mode"
	KindCredentialsMissing Kind = "credentials_missing"
	KindNetwork            Kind = "network"
	KindTimeout            Kind = "timeout"
)

var ErrCredentialsMissing = &Error{Kind: KindCredentialsMissing, Text: "exchange credentials are not configured"}

// Error is the typed failure every adapter returns. Text is already
// sanitized of vendor names.
type Error struct {
	Kind       Kind
	Status     int
	Code       string
	Text       string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " http %d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " code %s", e.Code)
	}
	if e.Text != "" {
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any adapter error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind of an adapter error, KindUnknown otherwise.
func KindOf(err error) Kind {
	var exErr *Error
	if errors.As(err, &exErr) {
		return exErr.Kind
	}
	return KindUnknown
}

// Retryable reports kinds that read-only polls may retry.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindRateLimited:
		return true
	}
	return false
}

var (
	scaleKeywords = []string{"checkscale", "checkbdscale", "price scale", "price precision", "checkprice"}
	stepKeywords  = []string{"step", "size scale", "size precision", "quantity precision", "qty precision"}
	marginWords   = []string{"insufficient", "balance not enough", "not enough margin", "margin is insufficient"}
	rateWords     = []string{"too many requests", "rate limit", "too frequent"}
	oneWayCodes   = map[string]bool{"40774": true}
	rateCodes     = map[string]bool{"429": true, "40429": true, "30007": true}
	marginCodes   = map[string]bool{"40754": true, "43012": true, "40762": true}
)

// Classify maps a rejected response to a typed error.
func Classify(status int, code, msg string, retryAfter time.Duration) *Error {
	text := SanitizeVendor(strings.TrimSpace(msg))
	lower := strings.ToLower(msg)
	kind := KindUnknown
	switch {
	case status == http.StatusTooManyRequests || rateCodes[code] || containsAny(lower, rateWords):
		kind = KindRateLimited
	case oneWayCodes[code] || strings.Contains(lower, "unilateral"):
		kind = KindOneWayMode
	case marginCodes[code] || containsAny(lower, marginWords):
		kind = KindInsufficientMargin
	case containsAny(lower, scaleKeywords):
		kind = KindInvalidScale
	case containsAny(lower, stepKeywords):
		kind = KindInvalidStep
	case status == http.StatusUnauthorized || strings.Contains(lower, "credential"):
		kind = KindCredentialsMissing
	case status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status >= 500:
		kind = KindNetwork
	}
	return &Error{Kind: kind, Status: status, Code: code, Text: text, RetryAfter: retryAfter}
}

// ClassifyTransport maps a transport failure to a network or timeout error.
func ClassifyTransport(err error) *Error {
	if err == nil {
		return nil
	}
	var exErr *Error
	if errors.As(err, &exErr) {
		return exErr
	}
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Text: SanitizeVendor(err.Error()), Err: err}
}

// ParseRetryAfter reads a Retry-After header value in seconds.
func ParseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

var vendorPattern = regexp.MustCompile(`(?i)bitget`)

// SanitizeVendor replaces the exchange vendor name in user-facing text.
func SanitizeVendor(text string) string {
	if text == "" {
		return text
	}
	return vendorPattern.ReplaceAllString(text, "Professor Oak")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
