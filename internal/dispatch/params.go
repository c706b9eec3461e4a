package dispatch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dgnsrekt/web_agent/internal/backend"
)

// Params is the deserialized parameter mapping delivered by the transport
// layer. The dispatcher owns all further validation.
type Params map[string]any

func validationErr(format string, args ...any) error {
	return backend.NewError(backend.KindValidation, fmt.Sprintf(format, args...), nil)
}

func (p Params) requireString(key string) (string, error) {
	raw, ok := p[key]
	if !ok {
		return "", validationErr("missing required param %q", key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", validationErr("param %q must be a non-empty string", key)
	}
	return strings.TrimSpace(s), nil
}

func (p Params) optionalString(key string) (string, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", validationErr("param %q must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

func (p Params) optionalBool(key string) (bool, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, validationErr("param %q must be a boolean", key)
	}
	return b, nil
}

// requireStringMap decodes a non-empty selector->value mapping. JSON decoding
// hands us map[string]any, so values are coerced per entry.
func (p Params) requireStringMap(key string) (map[string]string, error) {
	raw, ok := p[key]
	if !ok {
		return nil, validationErr("missing required param %q", key)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, validationErr("param %q must be a mapping of selector to value", key)
	}
	if len(m) == 0 {
		return nil, validationErr("param %q must not be empty", key)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, validationErr("param %q: value for selector %q must be a string", key, k)
		}
		out[k] = s
	}
	return out, nil
}

// requireStringSlice decodes a non-empty ordered sequence of strings.
func (p Params) requireStringSlice(key string) ([]string, error) {
	raw, ok := p[key]
	if !ok {
		return nil, validationErr("missing required param %q", key)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, validationErr("param %q must be a sequence of strings", key)
	}
	if len(items) == 0 {
		return nil, validationErr("param %q must not be empty", key)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, validationErr("param %q: element %d must be a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateURL rejects anything that is not an absolute http(s) URL before it
// reaches a backend.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return validationErr("invalid url %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validationErr("url must start with http or https, got %q", raw)
	}
	if u.Host == "" {
		return validationErr("url %q has no host", raw)
	}
	return nil
}
