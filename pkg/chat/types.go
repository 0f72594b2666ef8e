// Package chat contains the public domain models, interfaces, and wire
// constants for the chat service. It defines the contract for interacting
// with the service.
package chat

import "time"

// Message is a single direct message between two users. The delivery layer
// treats Text/Image/Video as opaque payload; only the persistence layer
// interprets them.
type Message struct {
	ID         string    `json:"id" firestore:"id"`
	SenderID   string    `json:"senderId" firestore:"senderId"`
	ReceiverID string    `json:"receiverId" firestore:"receiverId"`
	Text       string    `json:"text,omitempty" firestore:"text"`
	Image      string    `json:"image,omitempty" firestore:"image"`
	Video      string    `json:"video,omitempty" firestore:"video"`
	Read       bool      `json:"read" firestore:"read"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt"`
}

// Draft is the client-supplied body of a message before it is persisted.
// Media fields are URL strings; blob upload happens upstream of this service.
type Draft struct {
	Text  string `json:"text"`
	Image string `json:"image"`
	Video string `json:"video"`
}

// User is a registered account. PasswordHash never leaves the service.
type User struct {
	ID           string    `json:"id" firestore:"id"`
	Name         string    `json:"name" firestore:"name"`
	Email        string    `json:"email" firestore:"email"`
	Phone        string    `json:"phone,omitempty" firestore:"phone"`
	Gender       string    `json:"gender" firestore:"gender"`
	Bio          string    `json:"bio" firestore:"bio"`
	ProfilePic   string    `json:"profilePic" firestore:"profilePic"`
	PasswordHash string    `json:"-" firestore:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt"`
}

// ConnectionInfo holds details about a user's real-time connection.
// This is what the presence mirror stores per online user.
type ConnectionInfo struct {
	ServerInstanceID string `json:"serverInstanceId"`
	ConnectedAt      int64  `json:"connectedAt"`
}

// RouteResult is the outcome of routing an event to a single user.
type RouteResult int

const (
	// Delivered means the event was handed to the user's live connection.
	Delivered RouteResult = iota
	// Skipped means the user had no usable connection. This is an expected,
	// common outcome, not an error.
	Skipped
)

func (r RouteResult) String() string {
	if r == Delivered {
		return "delivered"
	}
	return "skipped"
}

// Wire-level event names observed at the transport boundary. These are part
// of the client contract and must not change.
const (
	EventOnlineUsers = "onlineUsers"
	EventNewMessage  = "newMessage"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
)

// TypingPayload is the payload pushed with typing and stopTyping events.
type TypingPayload struct {
	SenderID string `json:"senderId"`
}
