package dispatch

import (
	"context"
	"fmt"

	"github.com/sendloop/sendloop/internal/store"
)

// ChatCache short-circuits repeated chat lookups within a single fan-out.
// It is per-call state: the engine allocates one per Send and passes it
// explicitly, so unrelated requests never share it. Not safe for concurrent
// use without external coordination; the engine serializes access.
type ChatCache struct {
	byRecipient map[string]*store.Chat
}

func NewChatCache() *ChatCache {
	return &ChatCache{byRecipient: make(map[string]*store.Chat)}
}

// ResolveChat returns the direct chat for a recipient, creating it if absent.
// The storage layer's find-or-create is an atomic upsert, so concurrent
// first-contact sends for the same recipient converge on one chat. Storage
// failures return an error rather than panicking so the caller can degrade
// per recipient.
func ResolveChat(ctx context.Context, chats store.ChatStore, cache *ChatCache, userID, accountID, recipient string) (*store.Chat, error) {
	if cache != nil {
		if c, ok := cache.byRecipient[recipient]; ok {
			return c, nil
		}
	}

	c, err := chats.FindOrCreateDirect(ctx, userID, accountID, recipient)
	if err != nil {
		return nil, fmt.Errorf("resolve chat for %s: %w", recipient, err)
	}

	if cache != nil {
		cache.byRecipient[recipient] = c
	}
	return c, nil
}
