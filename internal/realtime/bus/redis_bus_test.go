package bus

import (
	"context"
	"testing"

	"github.com/yungbote/studyquiz-backend/internal/realtime"
)

func TestDecode(t *testing.T) {
	msg, err := decode(`{"channel":"library","event":"MaterialSaved","data":{"id":"m-1"}}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Channel != realtime.LibraryChannel || msg.Event != realtime.EventMaterialSaved {
		t.Fatalf("message: got=%+v", msg)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok || data["id"] != "m-1" {
		t.Fatalf("data: got=%#v", msg.Data)
	}

	for _, bad := range []string{`not json`, `{"channel":"library"}`, `{"event":"MaterialSaved"}`} {
		if _, err := decode(bad); err == nil {
			t.Fatalf("decode %q: want error", bad)
		}
	}
}

func TestUninitializedBus(t *testing.T) {
	var b *redisBus
	if err := b.Publish(context.Background(), realtime.Message{Channel: "library", Event: "x"}); err == nil {
		t.Fatalf("Publish on nil bus: want error")
	}
	if err := b.StartForwarder(context.Background(), func(realtime.Message) {}); err == nil {
		t.Fatalf("StartForwarder on nil bus: want error")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close on nil bus: %v", err)
	}
}
