package apiclient

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// newAPIError translates a non-2xx response body into an *APIError.
//
// Message precedence: "message", then "error", then every string under "errors"
// joined with ", ". A body that is not JSON is used as plain text cut to maxText
// runes. Anything else yields "<status> - <statusText>".
func newAPIError(status int, body []byte, maxText int) *APIError {
	return &APIError{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    extractMessage(status, body, maxText),
		Body:       body,
	}
}

func extractMessage(status int, body []byte, maxText int) string {
	if len(body) > 0 && gjson.ValidBytes(body) {
		doc := gjson.ParseBytes(body)
		if doc.IsObject() {
			if msg := fieldText(doc.Get("message")); msg != "" {
				return msg
			}
			if msg := fieldText(doc.Get("error")); msg != "" {
				return msg
			}
			if errs := doc.Get("errors"); errs.Exists() {
				if msg := strings.Join(flatten(errs, nil), ", "); msg != "" {
					return msg
				}
			}
		}
		if doc.Type == gjson.String && strings.TrimSpace(doc.String()) != "" {
			return truncateRunes(strings.TrimSpace(doc.String()), maxText)
		}
		return strconv.Itoa(status) + " - " + http.StatusText(status)
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return truncateRunes(text, maxText)
	}

	return strconv.Itoa(status) + " - " + http.StatusText(status)
}

// fieldText returns scalar values as text. An object under "error" (for example
// {"error": {"message": "..."}}) is searched for its own message.
func fieldText(v gjson.Result) string {
	switch {
	case !v.Exists():
		return ""
	case v.IsObject():
		return fieldText(v.Get("message"))
	case v.IsArray():
		return strings.Join(flatten(v, nil), ", ")
	case v.Type == gjson.Null:
		return ""
	default:
		return strings.TrimSpace(v.String())
	}
}

// flatten collects leaf values depth-first in document order.
func flatten(v gjson.Result, out []string) []string {
	if v.IsObject() || v.IsArray() {
		v.ForEach(func(_, value gjson.Result) bool {
			out = flatten(value, out)
			return true
		})
		return out
	}
	if v.Type == gjson.Null {
		return out
	}
	if s := strings.TrimSpace(v.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
