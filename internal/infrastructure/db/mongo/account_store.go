package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/weewoocad/accounts/internal/core/domain"
)

const (
	accountsCollection = "accounts"
	snapshotID         = "accounts"
)

// AccountStore keeps the whole account snapshot in one document, so a Save is
// a single atomic ReplaceOne.
type AccountStore struct {
	coll *mongo.Collection
}

func NewAccountStore(db *mongo.Database) *AccountStore {
	return &AccountStore{coll: db.Collection(accountsCollection)}
}

type snapshotDoc struct {
	ID        string         `bson:"_id"`
	Users     []mongoAccount `bson:"users"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type mongoAccount struct {
	ID                string     `bson:"id"`
	Username          string     `bson:"username"`
	Email             string     `bson:"email"`
	PasswordHash      string     `bson:"password_hash"`
	Confirmed         bool       `bson:"confirmed"`
	VerificationToken string     `bson:"verification_token,omitempty"`
	TokenExpiresAt    *time.Time `bson:"token_expires_at,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
}

// Load returns an empty snapshot when the document does not exist yet.
func (s *AccountStore) Load(ctx context.Context) (domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc snapshotDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": snapshotID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Snapshot{}, nil
		}
		return nil, fmt.Errorf("%w: find accounts: %v", domain.ErrStorageUnavailable, err)
	}

	accounts := make(domain.Snapshot, 0, len(doc.Users))
	for _, u := range doc.Users {
		a := domain.Account{
			ID:                u.ID,
			Username:          u.Username,
			Email:             u.Email,
			PasswordHash:      u.PasswordHash,
			Confirmed:         u.Confirmed,
			VerificationToken: u.VerificationToken,
			CreatedAt:         u.CreatedAt.UTC(),
		}
		if u.TokenExpiresAt != nil {
			exp := u.TokenExpiresAt.UTC()
			a.TokenExpiresAt = &exp
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// Save replaces the snapshot document, creating it on first use.
func (s *AccountStore) Save(ctx context.Context, accounts domain.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := snapshotDoc{
		ID:        snapshotID,
		Users:     make([]mongoAccount, 0, len(accounts)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, a := range accounts {
		doc.Users = append(doc.Users, mongoAccount{
			ID:                a.ID,
			Username:          a.Username,
			Email:             a.Email,
			PasswordHash:      a.PasswordHash,
			Confirmed:         a.Confirmed,
			VerificationToken: a.VerificationToken,
			TokenExpiresAt:    a.TokenExpiresAt,
			CreatedAt:         a.CreatedAt,
		})
	}

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": snapshotID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace accounts: %w", err)
	}
	return nil
}

// Ping verifies the server is reachable.
func (s *AccountStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}
