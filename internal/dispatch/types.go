package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// AccountCreds identifies the sending business account at the gateway.
type AccountCreds struct {
	AccountID     string // internal account identifier
	PhoneNumberID string // gateway phone number id
	BusinessID    string // gateway business account id (template edge)
	AccessToken   string // bearer token, never logged
}

// Payload is the channel-neutral wire unit handed to a Gateway. The gateway
// implementation turns it into its own request shape.
type Payload struct {
	To       string
	Kind     string // store.Kind* values
	Text     string
	MediaURL string
	Caption  string
	Latitude  float64
	Longitude float64
	Template *RenderedTemplate
	ReplyTo  string // external id of the message being replied to
}

// RenderedTemplate is a template definition with variables substituted.
// Parameters keeps the raw values for gateways that resolve templates
// server-side and only need the variable list.
type RenderedTemplate struct {
	Name       string
	Header     string
	Body       string
	Parameters []string
}

// Gateway sends one payload to one recipient and returns the external
// message id assigned by the messaging provider.
type Gateway interface {
	Send(ctx context.Context, creds AccountCreds, p Payload) (string, error)
}

// TemplateDefinition is a named message template as stored at the provider,
// with {{n}} placeholders still in place.
type TemplateDefinition struct {
	Name       string
	HeaderText string
	BodyText   string
	FooterText string
}

// TemplateStore fetches template definitions by name.
type TemplateStore interface {
	GetTemplateByName(ctx context.Context, creds AccountCreds, name string) (*TemplateDefinition, error)
}

// SendRequest is one logical send: one or many recipients, one message
// variant. Broadcast sends must carry the broadcast chat id.
type SendRequest struct {
	UserID     string
	Account    AccountCreds
	From       string // the business's own sending identifier
	Recipients []string
	Kind       string

	Text           string
	MediaURL       string
	Caption        string
	Latitude       float64
	Longitude      float64
	TemplateName   string
	TemplateValues []string

	Broadcast       bool
	BroadcastChatID uuid.UUID
	ReplyTo         string
	Tag             string
}

// RecipientFailure records one recipient's failed send within a fan-out.
type RecipientFailure struct {
	Recipient string
	Err       error
}

// SendResult aggregates a fan-out's outcome. Message is the broadcast master
// row when broadcasting, otherwise the most recently sent (or, if none sent,
// most recently failed) per-recipient row.
type SendResult struct {
	Sent     int
	Failed   int
	Failures []RecipientFailure
	Chat     *ChatRef // resolved chat for single-recipient sends
	Message  *MessageRef
}

// ChatRef is a thin reference to a resolved chat.
type ChatRef struct {
	ID   uuid.UUID
	Kind string
}

// MessageRef is a thin reference to a persisted message row.
type MessageRef struct {
	ID         uuid.UUID
	ExternalID string
	Status     string
}

// Validation and dispatch errors.
var (
	ErrNoRecipients       = errors.New("send request has no recipients")
	ErrUnknownMessageKind = errors.New("unknown message kind")
	ErrBroadcastChatID    = errors.New("broadcast send requires a broadcast chat id")
)
