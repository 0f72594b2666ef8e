package chat

import "context"

// Connection is the capability the fan-out core needs from one live
// transport connection. Implementations must be safe for concurrent Push
// calls and must not block the caller on a slow client.
type Connection interface {
	// Push queues an event for delivery to the client. Events pushed by
	// sequential calls are delivered in call order.
	Push(event string, payload any) error
}

// MessageStore persists and retrieves messages. It is the single source of
// truth for a conversation; the realtime layer is only an accelerator.
type MessageStore interface {
	// Save persists a new message, assigning its ID and CreatedAt.
	Save(ctx context.Context, msg *Message) error

	// Conversation returns all messages between two users, oldest first.
	Conversation(ctx context.Context, userID, otherID string) ([]*Message, error)

	// MarkConversationRead marks every unread message sent to userID within
	// the conversation as read.
	MarkConversationRead(ctx context.Context, userID, otherID string) error

	// MarkRead marks a single message as read.
	MarkRead(ctx context.Context, messageID string) error

	// UnreadCounts returns, per sender, the number of unread messages
	// addressed to receiverID. Senders with no unread messages are omitted.
	UnreadCounts(ctx context.Context, receiverID string) (map[string]int, error)
}

// UserStore persists and retrieves user accounts.
type UserStore interface {
	// Create persists a new user, assigning its ID and CreatedAt.
	// Returns ErrEmailTaken if the email is already registered.
	Create(ctx context.Context, user *User) error

	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update overwrites the stored user.
	Update(ctx context.Context, user *User) error

	// Delete removes the user's account.
	Delete(ctx context.Context, id string) error

	// List returns every user except excludeID.
	List(ctx context.Context, excludeID string) ([]*User, error)
}

// PresenceMirror publishes online/offline transitions to an external cache
// so other services can query who is online. Mirror failures never fail the
// registry mutation that triggered them.
type PresenceMirror interface {
	Set(ctx context.Context, userID string, info ConnectionInfo) error
	Delete(ctx context.Context, userID string) error
	Close() error
}

// ServiceDependencies holds all the external collaborators the chat service
// needs to operate. This struct is used for dependency injection.
type ServiceDependencies struct {
	Users    UserStore
	Messages MessageStore
	Presence PresenceMirror
}
