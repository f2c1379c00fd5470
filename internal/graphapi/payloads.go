package graphapi

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/sendloop/sendloop/internal/dispatch"
	"github.com/sendloop/sendloop/internal/store"
)

// buildMessagePayload turns a channel-neutral payload into the Cloud API
// request body for POST /{phone_number_id}/messages.
func buildMessagePayload(p dispatch.Payload) (map[string]any, error) {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                p.To,
	}
	if p.ReplyTo != "" {
		body["context"] = map[string]any{"message_id": p.ReplyTo}
	}

	switch p.Kind {
	case store.KindText:
		if p.Text == "" {
			return nil, fmt.Errorf("text message has empty body")
		}
		body["type"] = "text"
		body["text"] = map[string]any{"body": p.Text, "preview_url": true}

	case store.KindMedia:
		if p.MediaURL == "" {
			return nil, fmt.Errorf("media message has no media url")
		}
		media := map[string]any{"link": p.MediaURL}
		if p.Caption != "" {
			media["caption"] = p.Caption
		}
		kind := mediaKindFromURL(p.MediaURL)
		body["type"] = kind
		body[kind] = media

	case store.KindSticker:
		if p.MediaURL == "" {
			return nil, fmt.Errorf("sticker message has no media url")
		}
		body["type"] = "sticker"
		body["sticker"] = map[string]any{"link": p.MediaURL}

	case store.KindLocation:
		body["type"] = "location"
		body["location"] = map[string]any{
			"latitude":  p.Latitude,
			"longitude": p.Longitude,
		}

	case store.KindTemplate:
		if p.Template == nil {
			return nil, fmt.Errorf("template message has no rendered template")
		}
		// The Cloud API resolves templates by name; rendered text is only
		// used locally for previews. Variables travel as body parameters.
		tpl := map[string]any{
			"name":     p.Template.Name,
			"language": map[string]any{"code": "en"},
		}
		if len(p.Template.Parameters) > 0 {
			params := make([]map[string]any, 0, len(p.Template.Parameters))
			for _, v := range p.Template.Parameters {
				params = append(params, map[string]any{"type": "text", "text": v})
			}
			tpl["components"] = []map[string]any{{"type": "body", "parameters": params}}
		}
		body["type"] = "template"
		body["template"] = tpl

	default:
		return nil, fmt.Errorf("unsupported message kind %q", p.Kind)
	}

	return body, nil
}

// mediaKindFromURL picks the Cloud API media field from the URL extension.
// The Cloud API distinguishes image/video/audio/document payloads.
func mediaKindFromURL(url string) string {
	switch ext(url) {
	case "jpg", "jpeg", "png", "webp":
		return "image"
	case "mp4", "3gp":
		return "video"
	case "aac", "mp3", "ogg", "amr", "opus":
		return "audio"
	default:
		return "document"
	}
}

func ext(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
}
