package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/sendloop/sendloop/internal/store"
	"github.com/sendloop/sendloop/internal/store/memory"
)

// fakeGateway fails sends to recipients listed in failFor.
type fakeGateway struct {
	mu      sync.Mutex
	failFor map[string]bool
	calls   []string
	nextID  int
}

func (g *fakeGateway) Send(_ context.Context, _ AccountCreds, p Payload) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, p.To)
	if g.failFor[p.To] {
		return "", errors.New("gateway rejected message")
	}
	g.nextID++
	return fmt.Sprintf("wamid.%d", g.nextID), nil
}

type fakeTemplates struct {
	defs map[string]*TemplateDefinition
}

func (t *fakeTemplates) GetTemplateByName(_ context.Context, _ AccountCreds, name string) (*TemplateDefinition, error) {
	def, ok := t.defs[name]
	if !ok {
		return nil, fmt.Errorf("template %q not found", name)
	}
	return def, nil
}

// countingChatStore counts FindOrCreateDirect round-trips.
type countingChatStore struct {
	store.ChatStore
	mu    sync.Mutex
	finds int
}

func (c *countingChatStore) FindOrCreateDirect(ctx context.Context, userID, accountID, recipient string) (*store.Chat, error) {
	c.mu.Lock()
	c.finds++
	c.mu.Unlock()
	return c.ChatStore.FindOrCreateDirect(ctx, userID, accountID, recipient)
}

type testEnv struct {
	engine   *Engine
	gateway  *fakeGateway
	chats    *memory.ChatStore
	counting *countingChatStore
	messages *memory.MessageStore
}

func newTestEnv(failFor ...string) *testEnv {
	gw := &fakeGateway{failFor: make(map[string]bool)}
	for _, r := range failFor {
		gw.failFor[r] = true
	}
	chats := memory.NewChatStore()
	counting := &countingChatStore{ChatStore: chats}
	messages := memory.NewMessageStore()
	engine := NewEngine(EngineConfig{
		Chats:    counting,
		Messages: messages,
		Gateway:  gw,
		Templates: &fakeTemplates{defs: map[string]*TemplateDefinition{
			"order_shipped": {
				Name:     "order_shipped",
				BodyText: "Hi {{1}}, your order {{2}} shipped",
			},
		}},
	})
	return &testEnv{engine: engine, gateway: gw, chats: chats, counting: counting, messages: messages}
}

func baseRequest(recipients ...string) SendRequest {
	return SendRequest{
		UserID:     "u1",
		Account:    AccountCreds{AccountID: "acc1", PhoneNumberID: "123", AccessToken: "tok"},
		From:       "15550001111",
		Recipients: recipients,
		Kind:       store.KindText,
		Text:       "hello",
	}
}

func TestSendValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.engine.Send(ctx, SendRequest{UserID: "u1", Kind: store.KindText})
	if !errors.Is(err, ErrNoRecipients) {
		t.Errorf("empty recipients: err = %v, want ErrNoRecipients", err)
	}

	req := baseRequest("111")
	req.Kind = "carrier-pigeon"
	if _, err := env.engine.Send(ctx, req); !errors.Is(err, ErrUnknownMessageKind) {
		t.Errorf("bad kind: err = %v, want ErrUnknownMessageKind", err)
	}

	req = baseRequest("111", "222")
	req.Broadcast = true
	if _, err := env.engine.Send(ctx, req); !errors.Is(err, ErrBroadcastChatID) {
		t.Errorf("broadcast without chat id: err = %v, want ErrBroadcastChatID", err)
	}

	if len(env.gateway.calls) != 0 {
		t.Errorf("gateway called %d times during validation failures, want 0", len(env.gateway.calls))
	}
}

func TestSingleSendSuccess(t *testing.T) {
	env := newTestEnv()
	res, err := env.engine.Send(context.Background(), baseRequest("4915550000001"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Sent != 1 || res.Failed != 0 {
		t.Errorf("result = {sent:%d failed:%d}, want {sent:1 failed:0}", res.Sent, res.Failed)
	}
	if res.Chat == nil || res.Chat.Kind != store.ChatDirect {
		t.Fatalf("resolved chat = %+v, want direct chat", res.Chat)
	}
	if res.Message == nil || res.Message.Status != store.StatusSent || res.Message.ExternalID == "" {
		t.Fatalf("primary message = %+v, want sent with external id", res.Message)
	}

	rows := env.messages.All()
	if len(rows) != 1 {
		t.Fatalf("message rows = %d, want 1", len(rows))
	}
	chat, err := env.chats.GetByID(context.Background(), rows[0].ChatID)
	if err != nil {
		t.Fatalf("chat lookup: %v", err)
	}
	if chat.LastMessage != "hello" {
		t.Errorf("chat preview = %q, want %q", chat.LastMessage, "hello")
	}
}

func TestSingleSendAbortsOnGatewayFailure(t *testing.T) {
	env := newTestEnv("4915550000001")
	_, err := env.engine.Send(context.Background(), baseRequest("4915550000001"))
	if err == nil {
		t.Fatal("Send() succeeded, want error for failing single send")
	}
	for _, m := range env.messages.All() {
		if m.Status == store.StatusSent {
			t.Errorf("found message with status sent after failed single send: %+v", m)
		}
	}
}

func TestBroadcastPartialFailureIsolation(t *testing.T) {
	env := newTestEnv("222", "444")
	bc := &store.Chat{UserID: "u1", AccountID: "acc1", Participants: []string{"111", "222", "333", "444", "555"}}
	env.chats.AddBroadcast(bc)

	req := baseRequest("111", "222", "333", "444", "555")
	req.Broadcast = true
	req.BroadcastChatID = bc.ID

	res, err := env.engine.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send() error = %v, broadcast must tolerate partial failure", err)
	}
	if res.Sent != 3 || res.Failed != 2 {
		t.Errorf("result = {sent:%d failed:%d}, want {sent:3 failed:2}", res.Sent, res.Failed)
	}

	var masters int
	for _, m := range env.messages.All() {
		if m.To == store.BroadcastRecipient {
			masters++
			if len(m.Participants) != 5 {
				t.Errorf("master participants = %d, want 5", len(m.Participants))
			}
			if m.Status != store.StatusSent {
				t.Errorf("master status = %q, want sent", m.Status)
			}
		}
	}
	if masters != 1 {
		t.Errorf("broadcast master rows = %d, want exactly 1", masters)
	}
	if res.Message == nil {
		t.Error("result.Message is nil, want broadcast master")
	}
}

func TestBroadcastAllFailStillWritesMaster(t *testing.T) {
	env := newTestEnv("111", "222")
	bc := &store.Chat{UserID: "u1", AccountID: "acc1"}
	env.chats.AddBroadcast(bc)

	req := baseRequest("111", "222")
	req.Broadcast = true
	req.BroadcastChatID = bc.ID

	res, err := env.engine.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Sent != 0 || res.Failed != 2 {
		t.Errorf("result = {sent:%d failed:%d}, want {sent:0 failed:2}", res.Sent, res.Failed)
	}

	var masters int
	for _, m := range env.messages.All() {
		if m.To == store.BroadcastRecipient {
			masters++
			if m.Status != store.StatusFailed {
				t.Errorf("master status = %q, want failed when nothing sent", m.Status)
			}
		}
	}
	if masters != 1 {
		t.Errorf("broadcast master rows = %d, want exactly 1", masters)
	}
}

func TestChatCacheAvoidsRedundantLookups(t *testing.T) {
	env := newTestEnv()
	// Same recipient twice in one fan-out: one chat round-trip, two sends.
	res, err := env.engine.Send(context.Background(), baseRequest("111", "111"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Sent != 2 {
		t.Errorf("sent = %d, want 2", res.Sent)
	}
	if env.counting.finds != 1 {
		t.Errorf("chat lookups = %d, want 1 (cache hit for repeat recipient)", env.counting.finds)
	}
}

func TestTemplateSendRendersPlaceholders(t *testing.T) {
	env := newTestEnv()
	req := baseRequest("111")
	req.Kind = store.KindTemplate
	req.Text = ""
	req.TemplateName = "order_shipped"
	req.TemplateValues = []string{"Alice", "#123"}

	var gotBody string
	gw := env.gateway

	// Wrap the gateway to capture the rendered template.
	env.engine.gateway = gatewayFunc(func(ctx context.Context, creds AccountCreds, p Payload) (string, error) {
		if p.Template != nil {
			gotBody = p.Template.Body
		}
		return gw.Send(ctx, creds, p)
	})

	if _, err := env.engine.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	want := "Hi Alice, your order #123 shipped"
	if gotBody != want {
		t.Errorf("rendered body = %q, want %q", gotBody, want)
	}
}

func TestTemplateSendUnknownTemplate(t *testing.T) {
	env := newTestEnv()
	req := baseRequest("111")
	req.Kind = store.KindTemplate
	req.TemplateName = "nope"
	if _, err := env.engine.Send(context.Background(), req); err == nil {
		t.Error("Send() succeeded with unknown template, want error")
	}
	if len(env.gateway.calls) != 0 {
		t.Errorf("gateway called %d times, want 0 when template fetch fails", len(env.gateway.calls))
	}
}

// gatewayFunc adapts a function to the Gateway interface.
type gatewayFunc func(ctx context.Context, creds AccountCreds, p Payload) (string, error)

func (f gatewayFunc) Send(ctx context.Context, creds AccountCreds, p Payload) (string, error) {
	return f(ctx, creds, p)
}

func TestBroadcastFailedRowsAttachToDirectChats(t *testing.T) {
	env := newTestEnv("222")
	bc := &store.Chat{UserID: "u1", AccountID: "acc1"}
	env.chats.AddBroadcast(bc)

	req := baseRequest("111", "222")
	req.Broadcast = true
	req.BroadcastChatID = bc.ID

	if _, err := env.engine.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var failed *store.Message
	for _, m := range env.messages.All() {
		if m.Status == store.StatusFailed && m.To == "222" {
			cp := m
			failed = &cp
		}
	}
	if failed == nil {
		t.Fatal("no failed row persisted for recipient 222")
	}
	if failed.ChatID == uuid.Nil || failed.ChatID == bc.ID {
		t.Errorf("failed row chat = %s, want the recipient's direct chat", failed.ChatID)
	}
	if failed.ErrorText == "" {
		t.Error("failed row has empty error text")
	}
}
