package agent

import (
	"reflect"
	"testing"

	"github.com/sendloop/sendloop/internal/providers"
	"github.com/sendloop/sendloop/internal/store"
)

func TestProjectHistory(t *testing.T) {
	self := "15550001111"
	msgs := []store.Message{
		{From: "15559998888", Kind: store.KindText, Text: "hi, is the blue mug in stock?"},
		{From: self, Kind: store.KindText, Text: "Let me check for you!"},
		{From: "15559998888", Kind: store.KindMedia, MediaURL: "https://cdn.example/mug.jpg", Caption: "this one"},
		{From: "15559998888", Kind: store.KindMedia, MediaURL: "https://cdn.example/other.jpg"},
		{From: self, Kind: store.KindTemplate, TemplateName: "order_update"},
		{From: "15559998888", Kind: store.KindLocation, Latitude: 1.3, Longitude: 103.8},
		{From: "15559998888", Kind: store.KindSticker},
		{From: "15559998888", Kind: store.KindText, Text: ""}, // empty: dropped
	}

	got := ProjectHistory(msgs, self)
	want := []providers.Message{
		{Role: "user", Content: "hi, is the blue mug in stock?"},
		{Role: "assistant", Content: "Let me check for you!"},
		{Role: "user", Content: "[media] this one"},
		{Role: "user", Content: "[media]"},
		{Role: "assistant", Content: "Template message: order_update"},
		{Role: "user", Content: "[location]"},
		{Role: "user", Content: "[sticker]"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ProjectHistory() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestProjectHistoryPure(t *testing.T) {
	msgs := []store.Message{
		{From: "a", Kind: store.KindText, Text: "one"},
		{From: "b", Kind: store.KindText, Text: "two"},
	}
	first := ProjectHistory(msgs, "b")
	second := ProjectHistory(msgs, "b")
	if !reflect.DeepEqual(first, second) {
		t.Error("projection is not deterministic")
	}
	if msgs[0].Text != "one" || msgs[1].Text != "two" {
		t.Error("projection mutated its input")
	}
}

func TestProjectHistoryEmptyTemplateDropped(t *testing.T) {
	got := ProjectHistory([]store.Message{{From: "a", Kind: store.KindTemplate}}, "self")
	if len(got) != 0 {
		t.Errorf("nameless template should project to nothing, got %+v", got)
	}
}
