package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// forbiddenAttributeKeys lists attribute keys that would leak tenant
// payload data or credentials into spans.
var forbiddenAttributeKeys = map[string]struct{}{
	"email":         {},
	"password":      {},
	"api_key":       {},
	"authorization": {},
	"cookie":        {},
	"payload":       {},
}

const maxErrorLength = 256

// SafeAttributes drops forbidden keys and empty values before they reach a span.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		key := strings.ToLower(string(attr.Key))
		if _, forbidden := forbiddenAttributeKeys[key]; forbidden {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError truncates error messages so spans never carry full payloads.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	return errors.New(msg)
}
