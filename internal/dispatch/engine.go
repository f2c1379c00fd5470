// Package dispatch fans a logical send request out to one or many
// recipients against the messaging gateway, with per-recipient failure
// isolation and best-effort persistence: every attempted send resolves to a
// terminal sent/failed row before Send returns, and nothing is rolled back
// on partial failure.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sendloop/sendloop/internal/store"
)

const defaultMaxParallel = 8

// Engine is the dispatch engine.
type Engine struct {
	chats       store.ChatStore
	messages    store.MessageStore
	gateway     Gateway
	templates   TemplateStore
	maxParallel int
}

// EngineConfig configures a new Engine.
type EngineConfig struct {
	Chats       store.ChatStore
	Messages    store.MessageStore
	Gateway     Gateway
	Templates   TemplateStore
	MaxParallel int // broadcast fan-out concurrency, default 8
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultMaxParallel
	}
	return &Engine{
		chats:       cfg.Chats,
		messages:    cfg.Messages,
		gateway:     cfg.Gateway,
		templates:   cfg.Templates,
		maxParallel: cfg.MaxParallel,
	}
}

func validate(req *SendRequest) error {
	if len(req.Recipients) == 0 {
		return ErrNoRecipients
	}
	switch req.Kind {
	case store.KindText, store.KindMedia, store.KindLocation, store.KindTemplate, store.KindSticker:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageKind, req.Kind)
	}
	if req.Broadcast && req.BroadcastChatID == uuid.Nil {
		return ErrBroadcastChatID
	}
	return nil
}

// Send performs one logical send. Single-recipient non-broadcast failures
// abort with an error; broadcast/multi-recipient sends tolerate per-recipient
// failures and report them in the result.
func (e *Engine) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	var rendered *RenderedTemplate
	if req.Kind == store.KindTemplate {
		def, err := e.templates.GetTemplateByName(ctx, req.Account, req.TemplateName)
		if err != nil {
			return nil, fmt.Errorf("fetch template %q: %w", req.TemplateName, err)
		}
		rendered, err = renderTemplate(def, req.TemplateValues)
		if err != nil {
			return nil, fmt.Errorf("render template %q: %w", req.TemplateName, err)
		}
	}

	preview := previewText(&req, rendered)
	singleDirect := !req.Broadcast && len(req.Recipients) == 1

	// Resolve chats sequentially up front. The per-fan-out cache is
	// single-threaded by construction; the parallel phase below only sends.
	cache := NewChatCache()
	type target struct {
		recipient string
		chat      *store.Chat
	}
	var targets []target
	var failures []RecipientFailure
	for _, r := range req.Recipients {
		chat, err := ResolveChat(ctx, e.chats, cache, req.UserID, req.Account.AccountID, r)
		if err != nil {
			if singleDirect {
				return nil, err
			}
			slog.Warn("dispatch: chat resolution failed, skipping recipient",
				"user", req.UserID, "recipient", r, "error", err)
			failures = append(failures, RecipientFailure{Recipient: r, Err: err})
			continue
		}
		targets = append(targets, target{recipient: r, chat: chat})
	}

	var (
		mu       sync.Mutex
		sent     int
		lastSent *store.Message
		lastFail *store.Message
	)

	sendOne := func(tgt target) {
		msg, err := e.sendToRecipient(ctx, &req, tgt.recipient, tgt.chat, rendered, preview)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, RecipientFailure{Recipient: tgt.recipient, Err: err})
			if msg != nil {
				lastFail = msg
			}
			return
		}
		sent++
		lastSent = msg
	}

	if req.Broadcast && len(targets) > 1 {
		// Bounded fan-out; recipients are launched in list order but
		// complete in any order. Partial failure is expected and recorded.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.maxParallel)
		for _, tgt := range targets {
			tgt := tgt
			g.Go(func() error {
				select {
				case <-gctx.Done():
					mu.Lock()
					failures = append(failures, RecipientFailure{Recipient: tgt.recipient, Err: gctx.Err()})
					mu.Unlock()
					return nil
				default:
				}
				sendOne(tgt)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, tgt := range targets {
			sendOne(tgt)
			if singleDirect && len(failures) > 0 {
				// Single-recipient sends surface the failure synchronously.
				result := &SendResult{
					Failed:   1,
					Failures: failures,
					Chat:     &ChatRef{ID: tgt.chat.ID, Kind: tgt.chat.Kind},
				}
				if lastFail != nil {
					result.Message = &MessageRef{ID: lastFail.ID, Status: lastFail.Status}
				}
				return result, fmt.Errorf("send to %s: %w", tgt.recipient, failures[0].Err)
			}
		}
	}

	result := &SendResult{
		Sent:     sent,
		Failed:   len(failures),
		Failures: failures,
	}

	if req.Broadcast {
		master, err := e.writeBroadcastMaster(ctx, &req, preview, sent)
		if err != nil {
			slog.Error("dispatch: broadcast master write failed",
				"user", req.UserID, "chat", req.BroadcastChatID, "error", err)
		} else {
			result.Message = &MessageRef{ID: master.ID, Status: master.Status}
		}
		if err := e.chats.TouchPreview(ctx, req.BroadcastChatID, preview); err != nil {
			slog.Warn("dispatch: broadcast preview update failed",
				"chat", req.BroadcastChatID, "error", err)
		}
		result.Chat = &ChatRef{ID: req.BroadcastChatID, Kind: store.ChatBroadcast}
		return result, nil
	}

	if singleDirect && len(targets) == 1 {
		result.Chat = &ChatRef{ID: targets[0].chat.ID, Kind: targets[0].chat.Kind}
	}
	switch {
	case lastSent != nil:
		result.Message = &MessageRef{ID: lastSent.ID, ExternalID: lastSent.ExternalID, Status: lastSent.Status}
	case lastFail != nil:
		result.Message = &MessageRef{ID: lastFail.ID, Status: lastFail.Status}
	}
	return result, nil
}

// sendToRecipient issues one gateway call and persists the terminal row.
// On failure the returned message (if non-nil) is the persisted failed row.
func (e *Engine) sendToRecipient(ctx context.Context, req *SendRequest, recipient string, chat *store.Chat, rendered *RenderedTemplate, preview string) (*store.Message, error) {
	payload := Payload{
		To:        recipient,
		Kind:      req.Kind,
		Text:      req.Text,
		MediaURL:  req.MediaURL,
		Caption:   req.Caption,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Template:  rendered,
		ReplyTo:   req.ReplyTo,
	}

	msg := &store.Message{
		UserID:       req.UserID,
		ChatID:       chat.ID,
		From:         req.From,
		To:           recipient,
		Kind:         req.Kind,
		Text:         req.Text,
		MediaURL:     req.MediaURL,
		Caption:      req.Caption,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		TemplateName: req.TemplateName,
		Tag:          req.Tag,
		ReplyTo:      req.ReplyTo,
	}

	externalID, err := e.gateway.Send(ctx, req.Account, payload)
	if err == nil && externalID == "" {
		err = fmt.Errorf("gateway returned no message id")
	}
	if err != nil {
		msg.Status = store.StatusFailed
		msg.ErrorText = err.Error()
		if insErr := e.messages.Insert(ctx, msg); insErr != nil {
			slog.Error("dispatch: failed-row insert failed",
				"user", req.UserID, "recipient", recipient, "error", insErr)
			return nil, err
		}
		return msg, err
	}

	msg.Status = store.StatusSent
	msg.ExternalID = externalID
	if err := e.messages.Insert(ctx, msg); err != nil {
		// The gateway accepted the send; record the truth as best we can.
		slog.Error("dispatch: sent-row insert failed",
			"user", req.UserID, "recipient", recipient, "external_id", externalID, "error", err)
		return msg, nil
	}
	if err := e.chats.TouchPreview(ctx, chat.ID, preview); err != nil {
		slog.Warn("dispatch: preview update failed", "chat", chat.ID, "error", err)
	}
	return msg, nil
}

// writeBroadcastMaster persists the single campaign-level row. It is written
// exactly once per broadcast regardless of per-recipient outcomes.
func (e *Engine) writeBroadcastMaster(ctx context.Context, req *SendRequest, preview string, sent int) (*store.Message, error) {
	status := store.StatusSent
	if sent == 0 {
		status = store.StatusFailed
	}
	master := &store.Message{
		UserID:       req.UserID,
		ChatID:       req.BroadcastChatID,
		From:         req.From,
		To:           store.BroadcastRecipient,
		Kind:         req.Kind,
		Text:         req.Text,
		MediaURL:     req.MediaURL,
		Caption:      req.Caption,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		TemplateName: req.TemplateName,
		Participants: req.Recipients,
		Status:       status,
		Tag:          req.Tag,
	}
	if master.Tag == "" {
		master.Tag = "broadcast"
	}
	if err := e.messages.Insert(ctx, master); err != nil {
		return nil, err
	}
	return master, nil
}

// previewText derives the chat-list preview line for a send.
func previewText(req *SendRequest, rendered *RenderedTemplate) string {
	switch req.Kind {
	case store.KindText:
		return req.Text
	case store.KindMedia:
		if req.Caption != "" {
			return req.Caption
		}
		return "[media]"
	case store.KindLocation:
		return "[location]"
	case store.KindSticker:
		return "[sticker]"
	case store.KindTemplate:
		if rendered != nil && rendered.Body != "" {
			return rendered.Body
		}
		return "Template message: " + req.TemplateName
	}
	return ""
}
