package dispatch

import (
	"testing"

	"github.com/dgnsrekt/web_agent/internal/backend"
)

func TestParseToolAcceptsCatalogue(t *testing.T) {
	for _, tool := range Catalogue() {
		got, err := ParseTool(string(tool))
		if err != nil {
			t.Fatalf("ParseTool(%q) error = %v", tool, err)
		}
		if got != tool {
			t.Fatalf("ParseTool(%q) = %q", tool, got)
		}
	}
}

func TestParseToolRejectsUnknown(t *testing.T) {
	for _, name := range []string{"", "open_tab", "NEW_TAB", "new_tab "} {
		_, err := ParseTool(name)
		if err == nil {
			t.Fatalf("ParseTool(%q) error = nil; want validation error", name)
		}
		if got := backend.KindOf(err); got != backend.KindValidation {
			t.Fatalf("ParseTool(%q) error kind = %q; want %q", name, got, backend.KindValidation)
		}
	}
}

func TestRequireStringTrimsWhitespace(t *testing.T) {
	p := Params{"tab_id": "  tab-1  "}
	got, err := p.requireString("tab_id")
	if err != nil {
		t.Fatalf("requireString() error = %v", err)
	}
	if got != "tab-1" {
		t.Fatalf("requireString() = %q; want %q", got, "tab-1")
	}

	for name, params := range map[string]Params{
		"missing":    {},
		"empty":      {"tab_id": ""},
		"whitespace": {"tab_id": "   "},
		"not string": {"tab_id": 7},
	} {
		if _, err := params.requireString("tab_id"); err == nil {
			t.Fatalf("requireString() with %s value succeeded; want error", name)
		}
	}
}

func TestRequireStringMapCoercesValues(t *testing.T) {
	p := Params{"selectors_to_values": map[string]any{"#user": "alice"}}
	got, err := p.requireStringMap("selectors_to_values")
	if err != nil {
		t.Fatalf("requireStringMap() error = %v", err)
	}
	if got["#user"] != "alice" {
		t.Fatalf("requireStringMap() = %v", got)
	}

	p = Params{"selectors_to_values": map[string]any{"#age": 30}}
	if _, err := p.requireStringMap("selectors_to_values"); err == nil {
		t.Fatal("requireStringMap() with non-string value succeeded; want error")
	}
}

func TestRequireStringSliceRejectsMixedTypes(t *testing.T) {
	p := Params{"selectors": []any{"h1", 2}}
	if _, err := p.requireStringSlice("selectors"); err == nil {
		t.Fatal("requireStringSlice() with mixed types succeeded; want error")
	}
}

func TestValidateURL(t *testing.T) {
	for _, url := range []string{"https://example.com", "http://127.0.0.1:8080/path?q=1"} {
		if err := validateURL(url); err != nil {
			t.Fatalf("validateURL(%q) error = %v", url, err)
		}
	}
	for _, url := range []string{"ftp://example.com", "file:///etc/passwd", "javascript:alert(1)", "example.com", "https://"} {
		err := validateURL(url)
		if err == nil {
			t.Fatalf("validateURL(%q) error = nil; want validation error", url)
		}
		if got := backend.KindOf(err); got != backend.KindValidation {
			t.Fatalf("validateURL(%q) error kind = %q; want %q", url, got, backend.KindValidation)
		}
	}
}
