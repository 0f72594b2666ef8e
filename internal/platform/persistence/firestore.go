// Package persistence implements the message and user stores on Google
// Cloud Firestore.
package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// FirestoreMessageStore implements chat.MessageStore. Each message is one
// document; a derived "pair" field keys the conversation so history for
// either direction is a single equality query.
type FirestoreMessageStore struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// storedMessage wraps the message with the conversation pair key used for
// history queries.
type storedMessage struct {
	Pair    string       `firestore:"pair"`
	Message chat.Message `firestore:"message"`
}

// NewFirestoreMessageStore is the constructor for the FirestoreMessageStore.
func NewFirestoreMessageStore(client *firestore.Client, collection string, logger zerolog.Logger) (*FirestoreMessageStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if collection == "" {
		return nil, fmt.Errorf("messages collection name cannot be empty")
	}
	return &FirestoreMessageStore{
		client:     client,
		collection: collection,
		logger:     logger.With().Str("component", "FirestoreMessageStore").Logger(),
	}, nil
}

// PairKey is direction-independent: both participants map to the same
// conversation document set.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Save persists a new message, assigning its ID and CreatedAt.
func (s *FirestoreMessageStore) Save(ctx context.Context, msg *chat.Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	doc := storedMessage{
		Pair:    PairKey(msg.SenderID, msg.ReceiverID),
		Message: *msg,
	}
	if _, err := s.client.Collection(s.collection).Doc(msg.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Conversation returns all messages between two users, ordered ascending by
// creation time so clients can append to the bottom of the transcript.
func (s *FirestoreMessageStore) Conversation(ctx context.Context, userID, otherID string) ([]*chat.Message, error) {
	query := s.client.Collection(s.collection).
		Where("pair", "==", PairKey(userID, otherID)).
		OrderBy("message.createdAt", firestore.Asc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve conversation: %w", err)
	}

	messages := make([]*chat.Message, 0, len(docs))
	for _, doc := range docs {
		var stored storedMessage
		if err := doc.DataTo(&stored); err != nil {
			s.logger.Error().Err(err).Str("doc_id", doc.Ref.ID).Msg("Failed to unmarshal message, skipping")
			continue
		}
		msg := stored.Message
		messages = append(messages, &msg)
	}
	return messages, nil
}

// MarkConversationRead marks every unread message addressed to userID within
// the conversation as read.
func (s *FirestoreMessageStore) MarkConversationRead(ctx context.Context, userID, otherID string) error {
	query := s.client.Collection(s.collection).
		Where("pair", "==", PairKey(userID, otherID)).
		Where("message.receiverId", "==", userID).
		Where("message.read", "==", false)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("failed to query unread messages: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, doc := range docs {
		job, err := bw.Update(doc.Ref, []firestore.Update{{Path: "message.read", Value: true}})
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue read update: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var failed int
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			failed++
			s.logger.Error().Err(err).Msg("Read-receipt update failed.")
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to mark %d of %d messages read", failed, len(jobs))
	}
	return nil
}

// MarkRead marks a single message as read.
func (s *FirestoreMessageStore) MarkRead(ctx context.Context, messageID string) error {
	_, err := s.client.Collection(s.collection).Doc(messageID).
		Update(ctx, []firestore.Update{{Path: "message.read", Value: true}})
	if status.Code(err) == codes.NotFound {
		return chat.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// UnreadCounts returns, per sender, the number of unread messages addressed
// to receiverID.
func (s *FirestoreMessageStore) UnreadCounts(ctx context.Context, receiverID string) (map[string]int, error) {
	query := s.client.Collection(s.collection).
		Where("message.receiverId", "==", receiverID).
		Where("message.read", "==", false).
		Select("message.senderId")

	counts := make(map[string]int)
	iter := query.Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to count unread messages: %w", err)
		}
		sender, err := doc.DataAt("message.senderId")
		if err != nil {
			continue
		}
		if id, ok := sender.(string); ok {
			counts[id]++
		}
	}
	return counts, nil
}

// FirestoreUserStore implements chat.UserStore on a users collection keyed
// by user ID.
type FirestoreUserStore struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreUserStore is the constructor for the FirestoreUserStore.
func NewFirestoreUserStore(client *firestore.Client, collection string, logger zerolog.Logger) (*FirestoreUserStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if collection == "" {
		return nil, fmt.Errorf("users collection name cannot be empty")
	}
	return &FirestoreUserStore{
		client:     client,
		collection: collection,
		logger:     logger.With().Str("component", "FirestoreUserStore").Logger(),
	}, nil
}

// Create persists a new user, assigning its ID and CreatedAt. Returns
// chat.ErrEmailTaken when the address is already registered.
func (s *FirestoreUserStore) Create(ctx context.Context, user *chat.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if _, err := s.GetByEmail(ctx, user.Email); err == nil {
		return chat.ErrEmailTaken
	} else if err != chat.ErrNotFound {
		return err
	}

	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	if _, err := s.client.Collection(s.collection).Doc(user.ID).Set(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID fetches one user document.
func (s *FirestoreUserStore) GetByID(ctx context.Context, id string) (*chat.User, error) {
	doc, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	var user chat.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// GetByEmail finds a user by email address.
func (s *FirestoreUserStore) GetByEmail(ctx context.Context, email string) (*chat.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	docs, err := s.client.Collection(s.collection).
		Where("email", "==", email).Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, chat.ErrNotFound
	}
	var user chat.User
	if err := docs[0].DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// Update overwrites the stored user.
func (s *FirestoreUserStore) Update(ctx context.Context, user *chat.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if _, err := s.client.Collection(s.collection).Doc(user.ID).Set(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// Delete removes the user's account document.
func (s *FirestoreUserStore) Delete(ctx context.Context, id string) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if _, err := s.client.Collection(s.collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// List returns every user except excludeID.
func (s *FirestoreUserStore) List(ctx context.Context, excludeID string) ([]*chat.User, error) {
	docs, err := s.client.Collection(s.collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*chat.User, 0, len(docs))
	for _, doc := range docs {
		var user chat.User
		if err := doc.DataTo(&user); err != nil {
			s.logger.Error().Err(err).Str("doc_id", doc.Ref.ID).Msg("Failed to unmarshal user, skipping")
			continue
		}
		if user.ID == excludeID {
			continue
		}
		users = append(users, &user)
	}
	return users, nil
}
