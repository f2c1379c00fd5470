package store

import (
	"time"

	"github.com/google/uuid"
)

// GenNewID returns a time-ordered UUID for new rows.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Wallet holds a user's paid credit balance. One row per user,
// created lazily on first use and never deleted.
type Wallet struct {
	UserID  string
	Balance int64
	Updated time.Time
}

// MonthlyUsage counts free-tier consumption for one calendar month.
// A fresh row is created per (user, year, month); old rows are historical.
type MonthlyUsage struct {
	UserID string
	Year   int
	Month  int
	Used   int64
}

// Period identifies one free-allowance accounting month.
type Period struct {
	Year  int
	Month int
}

// PeriodOf returns the accounting period containing t (UTC).
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Chat kinds.
const (
	ChatDirect    = "direct"
	ChatBroadcast = "broadcast"
)

// BroadcastRecipient is the recipient marker on a broadcast master message.
const BroadcastRecipient = "broadcast"

// Chat is the conversation record messages are filed under.
type Chat struct {
	ID            uuid.UUID
	UserID        string
	AccountID     string
	Kind          string // "direct" or "broadcast"
	Participants  []string
	Name          string
	LastMessage   string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// Message kinds.
const (
	KindText     = "text"
	KindMedia    = "media"
	KindLocation = "location"
	KindTemplate = "template"
	KindSticker  = "sticker"
)

// Message delivery statuses. Sent/delivered/read transitions happen via
// delivery receipts outside this core; failed is terminal.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Message is one outbound or inbound unit tied to a chat.
type Message struct {
	ID           uuid.UUID
	UserID       string
	ChatID       uuid.UUID
	From         string
	To           string
	Kind         string
	Text         string
	MediaURL     string
	Caption      string
	Latitude     float64
	Longitude    float64
	TemplateName string
	Participants []string // set on broadcast master rows only
	ExternalID   string   // gateway message id, empty until acknowledged
	Status       string
	Tag          string // provenance marker, e.g. "broadcast", "aiAssistant"
	ReplyTo      string // external id of the message being replied to
	ErrorText    string // populated on failed sends
	CreatedAt    time.Time
}

// Integration connection statuses.
const (
	IntegrationConnected    = "connected"
	IntegrationNotConnected = "not_connected"
)

// IntegrationRecord is a user's connection to a third-party integration.
// Credentials is an opaque bag whose shape each executor validates itself.
type IntegrationRecord struct {
	UserID        string
	IntegrationID string // "shopify", "woocommerce", "google_calendar", ...
	Active        bool
	Status        string
	Credentials   map[string]string
	UpdatedAt     time.Time
}
