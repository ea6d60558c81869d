package i18n

import (
	"strings"
	"testing"
)

func TestEnglishLookup(t *testing.T) {
	messages, err := New("en")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := messages.T("processing", map[string]interface{}{"File": "vacation.jpg"})
	want := "Processing vacation.jpg"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestSpanishLookup(t *testing.T) {
	messages, err := New("es")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := messages.T("already_processed", map[string]interface{}{"File": "playa.jpg"})
	want := "playa.jpg ya fue procesado"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestUnsupportedLanguageFallsBackToEnglish(t *testing.T) {
	messages, err := New("de")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := messages.T("saved", map[string]interface{}{"Path": "out/pic_XL.jpg"})
	if !strings.HasPrefix(got, "Saved ") {
		t.Errorf("Expected English fallback, got %q", got)
	}
}

func TestUnknownMessageIDReturnsID(t *testing.T) {
	messages, err := New("en")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := messages.T("no_such_message", nil); got != "no_such_message" {
		t.Errorf("Expected verbatim ID, got %q", got)
	}
}

func TestSummaryCounts(t *testing.T) {
	messages, err := New("es")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := messages.T("summary", map[string]interface{}{
		"Processed": 3,
		"Skipped":   1,
		"Failed":    0,
		"Total":     4,
	})
	want := "Listo: 3 procesadas, 1 omitidas, 0 fallidas (4 en total)"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestLang(t *testing.T) {
	messages, err := New("es")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if messages.Lang() != "es" {
		t.Errorf("Expected lang es, got %q", messages.Lang())
	}
}
