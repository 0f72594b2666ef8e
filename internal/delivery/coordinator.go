// Package delivery contains the coordinator for the canonical send-message
// path: persist, acknowledge, then best-effort real-time fan-out.
package delivery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-chat-service/internal/realtime"
	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// Coordinator orchestrates the full send path. The store is the single
// suspension point: the sender's success depends only on the persistence
// write, never on whether the receiver is reachable.
type Coordinator struct {
	store  chat.MessageStore
	router *realtime.Router
	logger zerolog.Logger
}

// NewCoordinator creates a new send coordinator.
func NewCoordinator(store chat.MessageStore, router *realtime.Router, logger zerolog.Logger) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("message store cannot be nil")
	}
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	return &Coordinator{
		store:  store,
		router: router,
		logger: logger.With().Str("component", "Coordinator").Logger(),
	}, nil
}

// Send persists the draft and returns the stored message. If the write
// fails, the send aborts and nothing is pushed. Once persisted, the message
// is pushed to the receiver's connection and echoed to the sender's own
// connection for multi-tab consistency; neither push can fail the call, and
// the message stays visible via history regardless of delivery outcome.
func (c *Coordinator) Send(ctx context.Context, senderID, receiverID string, draft chat.Draft) (*chat.Message, error) {
	msg := &chat.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       draft.Text,
		Image:      draft.Image,
		Video:      draft.Video,
	}

	if err := c.store.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	// An actual message supersedes any pending typing indicator.
	c.router.ClearTyping(senderID, receiverID)

	if res := c.router.RouteToUser(receiverID, chat.EventNewMessage, msg); res == chat.Skipped {
		c.logger.Debug().Str("receiver", receiverID).Str("msg_id", msg.ID).Msg("Receiver offline, no real-time push.")
	}
	if senderID != receiverID {
		c.router.RouteToUser(senderID, chat.EventNewMessage, msg)
	}

	return msg, nil
}
