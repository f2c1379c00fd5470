// Package assist wires the auto-reply pipeline: an inbound customer
// message is gated on credit availability, answered by the agent with the
// user's bound integration tools, dispatched back, and billed.
package assist

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sendloop/sendloop/internal/agent"
	"github.com/sendloop/sendloop/internal/credit"
	"github.com/sendloop/sendloop/internal/dispatch"
	"github.com/sendloop/sendloop/internal/store"
)

const (
	replyTag            = "aiAssistant"
	defaultHistoryLimit = 30
	replyCreditCost     = 1
)

// Dispatcher sends the assistant's reply.
type Dispatcher interface {
	Send(ctx context.Context, req dispatch.SendRequest) (*dispatch.SendResult, error)
}

// ToolBinder loads a user's integration tools.
type ToolBinder interface {
	BindTools(ctx context.Context, userID string) ([]agent.Tool, error)
}

// Runner executes one agent turn.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error)
}

// Config holds the assistant settings for a deployment.
type Config struct {
	Enabled      bool
	Prompt       string // business-specific instructions, may be empty
	HistoryLimit int    // messages of context per reply, default 30
}

// Service is the auto-reply pipeline.
type Service struct {
	cfg        Config
	ledger     *credit.Ledger
	binder     ToolBinder
	runner     Runner
	dispatcher Dispatcher
	chats      store.ChatStore
	messages   store.MessageStore
}

func NewService(cfg Config, ledger *credit.Ledger, binder ToolBinder, runner Runner, dispatcher Dispatcher, chats store.ChatStore, messages store.MessageStore) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &Service{
		cfg:        cfg,
		ledger:     ledger,
		binder:     binder,
		runner:     runner,
		dispatcher: dispatcher,
		chats:      chats,
		messages:   messages,
	}
}

// InboundMessage is one customer message arriving from the ingress.
type InboundMessage struct {
	UserID     string
	Account    dispatch.AccountCreds
	From       string // customer number
	To         string // the business's own number
	SenderName string
	Kind       string
	Text       string
	MediaURL   string
	Caption    string
	ExternalID string
}

// HandleInbound records the inbound message and, when the assistant is on,
// produces and sends a reply. Errors never propagate to the webhook caller;
// the customer just gets no automatic answer.
func (s *Service) HandleInbound(ctx context.Context, in InboundMessage) {
	chat, err := s.recordInbound(ctx, in)
	if err != nil {
		slog.Error("assist: inbound persistence failed", "user", in.UserID, "from", in.From, "error", err)
		return
	}
	if !s.cfg.Enabled {
		return
	}
	if err := s.reply(ctx, in, chat); err != nil {
		slog.Error("assist: reply failed", "user", in.UserID, "from", in.From, "error", err)
	}
}

// recordInbound files the customer message under its direct chat. This
// happens whether or not the assistant replies.
func (s *Service) recordInbound(ctx context.Context, in InboundMessage) (*store.Chat, error) {
	chat, err := s.chats.FindOrCreateDirect(ctx, in.UserID, in.Account.AccountID, in.From)
	if err != nil {
		return nil, err
	}

	kind := in.Kind
	if kind == "" {
		kind = store.KindText
	}
	msg := &store.Message{
		UserID:     in.UserID,
		ChatID:     chat.ID,
		From:       in.From,
		To:         in.To,
		Kind:       kind,
		Text:       in.Text,
		MediaURL:   in.MediaURL,
		Caption:    in.Caption,
		ExternalID: in.ExternalID,
		Status:     store.StatusDelivered,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	if preview := agentPreview(msg); preview != "" {
		if err := s.chats.TouchPreview(ctx, chat.ID, preview); err != nil {
			slog.Warn("assist: inbound preview update failed", "chat", chat.ID, "error", err)
		}
	}
	return chat, nil
}

func (s *Service) reply(ctx context.Context, in InboundMessage, chat *store.Chat) error {
	avail, err := s.ledger.CheckAvailability(ctx, in.UserID, replyCreditCost)
	if err != nil {
		return err
	}
	if !avail.Allowed {
		slog.Info("assist: reply skipped, no credits",
			"user", in.UserID, "balance", avail.WalletBalance, "free_remaining", avail.FreeRemaining)
		return nil
	}

	tools, err := s.binder.BindTools(ctx, in.UserID)
	if err != nil {
		// A broken integration should not mute the assistant entirely.
		slog.Warn("assist: tool binding failed, replying without tools", "user", in.UserID, "error", err)
		tools = nil
	}

	history, err := s.messages.ListRecent(ctx, chat.ID, s.cfg.HistoryLimit)
	if err != nil {
		return err
	}

	result, err := s.runner.Run(ctx, agent.RunRequest{
		UserID:       in.UserID,
		Prompt:       s.cfg.Prompt,
		History:      history,
		SelfID:       in.To,
		SenderName:   in.SenderName,
		SenderNumber: in.From,
		Tools:        tools,
	})
	if err != nil {
		return err
	}
	content := strings.TrimSpace(result.Content)
	if content == "" {
		slog.Info("assist: agent produced no reply", "user", in.UserID, "steps", result.Steps)
		return nil
	}

	if _, err := s.dispatcher.Send(ctx, dispatch.SendRequest{
		UserID:     in.UserID,
		Account:    in.Account,
		From:       in.To,
		Recipients: []string{in.From},
		Kind:       store.KindText,
		Text:       content,
		Tag:        replyTag,
	}); err != nil {
		return err
	}

	// Billing follows the send: an undelivered reply is never charged, at
	// the cost of a free reply if this debit fails.
	if _, err := s.ledger.Consume(ctx, in.UserID, replyCreditCost); err != nil {
		slog.Error("assist: post-send consumption failed", "user", in.UserID, "error", err)
	}
	return nil
}

func agentPreview(m *store.Message) string {
	switch m.Kind {
	case store.KindText:
		return m.Text
	case store.KindMedia:
		if m.Caption != "" {
			return m.Caption
		}
		return "[media]"
	case store.KindLocation:
		return "[location]"
	case store.KindSticker:
		return "[sticker]"
	}
	return ""
}
