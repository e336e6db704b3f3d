package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/chatrelay/internal/store"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
)

// chatDoc matches the documents written by the chat backend.
type chatDoc struct {
	ID           primitive.ObjectID   `bson:"_id"`
	Participants []primitive.ObjectID `bson:"participants"`
	Type         string               `bson:"type"`
	GroupName    string               `bson:"groupName,omitempty"`
	GroupAdmin   *primitive.ObjectID  `bson:"groupAdmin,omitempty"`
	LastMessage  *primitive.ObjectID  `bson:"lastMessage,omitempty"`
	CreatedAt    time.Time            `bson:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Sender    primitive.ObjectID `bson:"sender"`
	Receiver  primitive.ObjectID `bson:"receiver"`
	Content   string             `bson:"content"`
	Type      string             `bson:"type"`
	Status    string             `bson:"status"`
	ChatID    primitive.ObjectID `bson:"chatId"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// MongoStore implements store.Store on the backend's MongoDB database.
type MongoStore struct {
	client   *mongo.Client
	chats    *mongo.Collection
	messages *mongo.Collection
}

// New connects to uri, pings the server and binds the chat collections of database.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}

	opts := options.Client().ApplyURI(uri).SetAppName("chatrelay")
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return NewWithDatabase(client, client.Database(database)), nil
}

// NewWithDatabase wraps an existing client and database.
func NewWithDatabase(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:   client,
		chats:    db.Collection(chatsCollection),
		messages: db.Collection(messagesCollection),
	}
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// GetChat retrieves a chat by ID.
func (s *MongoStore) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", chatID, store.ErrNotFound)
	}

	var doc chatDoc
	if err := s.chats.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("chat %s: %w", chatID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("find chat: %w", err)
	}

	return chatFromDoc(&doc), nil
}

// IsParticipant checks if userID is a participant of chatID.
func (s *MongoStore) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	chatOID, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return false, nil
	}
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, nil
	}

	n, err := s.chats.CountDocuments(ctx, bson.M{"_id": chatOID, "participants": userOID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count chats: %w", err)
	}
	return n > 0, nil
}

// GetMessage retrieves a message by ID.
func (s *MongoStore) GetMessage(ctx context.Context, messageID string) (*store.Message, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
	}

	var doc messageDoc
	if err := s.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("find message: %w", err)
	}

	return messageFromDoc(&doc), nil
}

// AdvanceStatus moves the message status forward, never backwards.
func (s *MongoStore) AdvanceStatus(ctx context.Context, messageID string, status store.MessageStatus) (*store.Message, error) {
	if status.Rank() == 0 {
		return nil, fmt.Errorf("advance status: unknown status %q", status)
	}
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
	}

	filter := bson.M{"_id": oid, "status": bson.M{"$in": earlierStatuses(status)}}
	update := bson.M{"$set": bson.M{"status": string(status), "updatedAt": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc messageDoc
	err = s.messages.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return messageFromDoc(&doc), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update status: %w", err)
	}

	// Either the message is missing or it is already at or past status.
	msg, getErr := s.GetMessage(ctx, messageID)
	if getErr != nil {
		return nil, getErr
	}
	return msg, store.ErrStatusRegression
}

// earlierStatuses lists stored values that may advance to status.
// Documents without a status field count as sent.
func earlierStatuses(status store.MessageStatus) bson.A {
	all := []store.MessageStatus{store.MessageStatusSent, store.MessageStatusDelivered, store.MessageStatusRead}
	out := bson.A{nil, ""}
	for _, s := range all {
		if s.Precedes(status) {
			out = append(out, string(s))
		}
	}
	return out
}

func chatFromDoc(doc *chatDoc) *store.Chat {
	chat := &store.Chat{
		ID:           doc.ID.Hex(),
		Type:         store.ChatType(doc.Type),
		GroupName:    doc.GroupName,
		Participants: make([]string, 0, len(doc.Participants)),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	if chat.Type == "" {
		chat.Type = store.ChatTypeIndividual
	}
	for _, p := range doc.Participants {
		chat.Participants = append(chat.Participants, p.Hex())
	}
	if doc.GroupAdmin != nil {
		chat.GroupAdmin = doc.GroupAdmin.Hex()
	}
	if doc.LastMessage != nil {
		chat.LastMessageID = doc.LastMessage.Hex()
	}
	return chat
}

func messageFromDoc(doc *messageDoc) *store.Message {
	msg := &store.Message{
		ID:         doc.ID.Hex(),
		ChatID:     doc.ChatID.Hex(),
		SenderID:   doc.Sender.Hex(),
		ReceiverID: doc.Receiver.Hex(),
		Content:    doc.Content,
		Type:       store.MessageType(doc.Type),
		Status:     store.MessageStatus(doc.Status),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	if msg.Type == "" {
		msg.Type = store.MessageTypeText
	}
	if msg.Status == "" {
		msg.Status = store.MessageStatusSent
	}
	return msg
}

// Ensure MongoStore implements store.Store
var _ store.Store = (*MongoStore)(nil)
