package backend

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestKindOfUnstructuredError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindBackend {
		t.Fatalf("KindOf() = %q; want %q", got, KindBackend)
	}
}

func TestKindOfWrappedCodedError(t *testing.T) {
	inner := NewError(KindNotFound, "missing", nil)
	wrapped := NewError(KindBackend, "outer", inner)

	var coded *CodedError
	if !errors.As(wrapped, &coded) {
		t.Fatal("errors.As() failed on wrapped error")
	}
	if got := KindOf(wrapped); got != KindBackend {
		t.Fatalf("KindOf() = %q; want outermost kind %q", got, KindBackend)
	}
}

func TestClassifyPreservesCodedErrors(t *testing.T) {
	coded := NewError(KindSelectorNotFound, "no match", nil)
	out := Classify(coded, "click failed")
	if got := KindOf(out); got != KindSelectorNotFound {
		t.Fatalf("Classify() kind = %q; want %q", got, KindSelectorNotFound)
	}
}

func TestClassifyWrapsUnstructuredErrors(t *testing.T) {
	out := Classify(errors.New("socket hang up"), "backend call failed")
	if got := KindOf(out); got != KindBackend {
		t.Fatalf("Classify() kind = %q; want %q", got, KindBackend)
	}
	if got := MessageOf(out); got != "backend call failed" {
		t.Fatalf("MessageOf() = %q; want %q", got, "backend call failed")
	}
}

func TestExtractResultMarshalPreservesSelectorOrder(t *testing.T) {
	result := ExtractResult{Entries: []ExtractEntry{
		{Selector: "z-last", Matches: []string{"v1"}},
		{Selector: "a-first", Matches: nil},
		{Selector: "m-middle", Matches: []string{"v2", "v3"}},
	}}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	want := `{"z-last":["v1"],"a-first":[],"m-middle":["v2","v3"]}`
	if string(data) != want {
		t.Fatalf("Marshal() = %s; want %s", data, want)
	}
}

func TestExtractResultRoundTripsThroughDecode(t *testing.T) {
	result := ExtractResult{Entries: []ExtractEntry{
		{Selector: "h1", Matches: []string{"title"}},
	}}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded map[string][]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got := decoded["h1"]; len(got) != 1 || got[0] != "title" {
		t.Fatalf("decoded[h1] = %v; want [title]", got)
	}
}
