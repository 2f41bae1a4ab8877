package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ StateStore = &MongoStateStore{}
var _ TokenStore = &MongoTokenStore{}

// MongoStateStore is a MongoDB-backed StateStore. Atomic consumption is
// delegated to FindOneAndDelete, so concurrent callbacks racing on the
// same token see exactly one winner.
type MongoStateStore struct {
	states *mongo.Collection
}

// NewMongoStateStore creates a state store backed by the given DB.
func NewMongoStateStore(db *mongo.Database) *MongoStateStore {
	return &MongoStateStore{states: db.Collection("oauth_states")}
}

// Put records a fresh state row.
func (s *MongoStateStore) Put(ctx context.Context, st OAuthState) error {
	doc := bson.M{
		"state":      st.State,
		"user_id":    st.UserID,
		"expires_at": st.ExpiresAt.UTC(),
	}
	if _, err := s.states.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("state store: insert: %w", err)
	}
	return nil
}

// Consume deletes and returns the state in a single findAndModify. The
// filter also excludes expired rows, so a row past its window counts as
// absent even before any cleanup job removes it.
func (s *MongoStateStore) Consume(ctx context.Context, state string) (*OAuthState, error) {
	filter := bson.M{
		"state":      state,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}
	var doc struct {
		State     string    `bson:"state"`
		UserID    string    `bson:"user_id"`
		ExpiresAt time.Time `bson:"expires_at"`
	}
	err := s.states.FindOneAndDelete(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrInvalidState
	} else if err != nil {
		return nil, fmt.Errorf("state store: consume: %w", err)
	}
	return &OAuthState{State: doc.State, UserID: doc.UserID, ExpiresAt: doc.ExpiresAt}, nil
}

// MongoTokenStore is a MongoDB-backed TokenStore keyed by
// (user_id, provider).
type MongoTokenStore struct {
	integrations *mongo.Collection
}

// NewMongoTokenStore creates a token store backed by the given DB.
func NewMongoTokenStore(db *mongo.Database) *MongoTokenStore {
	return &MongoTokenStore{integrations: db.Collection("google_integrations")}
}

// Get retrieves the stored credential for one user+provider.
func (s *MongoTokenStore) Get(ctx context.Context, userID, provider string) (*Integration, error) {
	var doc struct {
		UserID       string    `bson:"user_id"`
		Provider     string    `bson:"provider"`
		AccessToken  string    `bson:"access_token"`
		RefreshToken string    `bson:"refresh_token"`
		Scope        string    `bson:"scope"`
		TokenType    string    `bson:"token_type"`
		ExpiresAt    time.Time `bson:"expires_at"`
		UpdatedAt    time.Time `bson:"updated_at"`
	}
	err := s.integrations.FindOne(ctx, bson.M{"user_id": userID, "provider": provider}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotConnected
	} else if err != nil {
		return nil, fmt.Errorf("token store: get: %w", err)
	}
	return &Integration{
		UserID:       doc.UserID,
		Provider:     doc.Provider,
		AccessToken:  doc.AccessToken,
		RefreshToken: doc.RefreshToken,
		Scope:        doc.Scope,
		TokenType:    doc.TokenType,
		ExpiresAt:    doc.ExpiresAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

// Upsert inserts or updates the credential in one atomic write. The
// refresh_token field is only touched when a new value is present, so a
// refresh response that omits it cannot null out the stored one.
func (s *MongoTokenStore) Upsert(ctx context.Context, in Integration) error {
	set := bson.M{
		"access_token": in.AccessToken,
		"scope":        in.Scope,
		"token_type":   in.TokenType,
		"updated_at":   time.Now().UTC(),
	}
	if in.ExpiresAt.IsZero() {
		set["expires_at"] = nil
	} else {
		set["expires_at"] = in.ExpiresAt.UTC()
	}
	if in.RefreshToken != "" {
		set["refresh_token"] = in.RefreshToken
	}
	filter := bson.M{"user_id": in.UserID, "provider": in.Provider}
	opts := options.Update().SetUpsert(true)
	if _, err := s.integrations.UpdateOne(ctx, filter, bson.M{"$set": set}, opts); err != nil {
		return fmt.Errorf("token store: upsert: %w", err)
	}
	return nil
}
