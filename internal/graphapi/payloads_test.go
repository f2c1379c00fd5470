package graphapi

import (
	"testing"

	"github.com/sendloop/sendloop/internal/dispatch"
	"github.com/sendloop/sendloop/internal/store"
)

func TestBuildMessagePayload(t *testing.T) {
	tests := []struct {
		name     string
		payload  dispatch.Payload
		wantType string
		wantErr  bool
	}{
		{
			name:     "text",
			payload:  dispatch.Payload{To: "111", Kind: store.KindText, Text: "hi"},
			wantType: "text",
		},
		{
			name:    "empty text rejected",
			payload: dispatch.Payload{To: "111", Kind: store.KindText},
			wantErr: true,
		},
		{
			name:     "image media",
			payload:  dispatch.Payload{To: "111", Kind: store.KindMedia, MediaURL: "https://cdn.example.com/a.jpg", Caption: "pic"},
			wantType: "image",
		},
		{
			name:     "document media",
			payload:  dispatch.Payload{To: "111", Kind: store.KindMedia, MediaURL: "https://cdn.example.com/a.pdf"},
			wantType: "document",
		},
		{
			name:     "video with query string",
			payload:  dispatch.Payload{To: "111", Kind: store.KindMedia, MediaURL: "https://cdn.example.com/clip.mp4?sig=abc"},
			wantType: "video",
		},
		{
			name:    "media without url rejected",
			payload: dispatch.Payload{To: "111", Kind: store.KindMedia},
			wantErr: true,
		},
		{
			name:     "location",
			payload:  dispatch.Payload{To: "111", Kind: store.KindLocation, Latitude: 52.52, Longitude: 13.4},
			wantType: "location",
		},
		{
			name:     "sticker",
			payload:  dispatch.Payload{To: "111", Kind: store.KindSticker, MediaURL: "https://cdn.example.com/s.webp"},
			wantType: "sticker",
		},
		{
			name: "template",
			payload: dispatch.Payload{To: "111", Kind: store.KindTemplate, Template: &dispatch.RenderedTemplate{
				Name: "order_shipped", Parameters: []string{"Alice"},
			}},
			wantType: "template",
		},
		{
			name:    "template without definition rejected",
			payload: dispatch.Payload{To: "111", Kind: store.KindTemplate},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildMessagePayload(tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatal("buildMessagePayload() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildMessagePayload() error = %v", err)
			}
			if got["messaging_product"] != "whatsapp" {
				t.Errorf("messaging_product = %v, want whatsapp", got["messaging_product"])
			}
			if got["to"] != tt.payload.To {
				t.Errorf("to = %v, want %v", got["to"], tt.payload.To)
			}
			if got["type"] != tt.wantType {
				t.Errorf("type = %v, want %v", got["type"], tt.wantType)
			}
			if _, ok := got[tt.wantType]; !ok && tt.wantType != "" {
				t.Errorf("payload missing %q object", tt.wantType)
			}
		})
	}
}

func TestBuildMessagePayloadReplyContext(t *testing.T) {
	got, err := buildMessagePayload(dispatch.Payload{
		To: "111", Kind: store.KindText, Text: "hi", ReplyTo: "wamid.orig",
	})
	if err != nil {
		t.Fatalf("buildMessagePayload() error = %v", err)
	}
	ctxField, ok := got["context"].(map[string]any)
	if !ok {
		t.Fatal("payload has no context object for reply")
	}
	if ctxField["message_id"] != "wamid.orig" {
		t.Errorf("context.message_id = %v, want wamid.orig", ctxField["message_id"])
	}
}
