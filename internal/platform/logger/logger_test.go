package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVsRedactsAndTruncates(t *testing.T) {
	long := strings.Repeat("a", maxTextValue+40)
	out := sanitizeKVs([]interface{}{
		"gemini_api_key", "AIza-secret",
		"extracted_text", long,
		"client_id", "device-1",
		"material_id", "m-1",
	})
	if len(out) != 8 {
		t.Fatalf("len: want=8 got=%d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("api key: want=[REDACTED] got=%v", out[1])
	}
	text, _ := out[3].(string)
	if !strings.HasPrefix(text, strings.Repeat("a", maxTextValue)) || !strings.Contains(text, "chars)") {
		t.Fatalf("extracted_text not truncated: %q", text)
	}
	if s, _ := out[5].(string); !strings.HasPrefix(s, "hash:") {
		t.Fatalf("client_id: want hash got=%v", out[5])
	}
	if out[7] != "m-1" {
		t.Fatalf("material_id: want=m-1 got=%v", out[7])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"status", "queued", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("odd kv: got=%v", out)
	}
}
