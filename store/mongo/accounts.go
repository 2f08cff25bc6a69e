// Package mongo stores accounts in a MongoDB collection keyed by account id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/accessgate"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionAccounts = "accounts"

type accountDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	Status       string    `bson:"status"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func toDoc(a accessgate.Account) accountDoc {
	return accountDoc{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func (d accountDoc) account() accessgate.Account {
	return accessgate.Account{
		ID:           d.ID,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Status:       accessgate.Status(d.Status),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

type Config struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	IdleConnTimeout time.Duration
}

// Store is an accessgate.AccountStore over one collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials MongoDB, pings it and makes sure the unique indexes exist.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx,
		options.Client().ApplyURI(cfg.URI),
		options.Client().SetMaxConnIdleTime(cfg.IdleConnTimeout),
		options.Client().SetMaxPoolSize(cfg.MaxPoolSize),
	)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{
		client: client,
		coll:   client.Database(cfg.Database).Collection(collectionAccounts),
	}
	if err := s.ensureIndexes(dialCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create account indexes: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (accessgate.Account, bool, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) FindByID(ctx context.Context, id string) (accessgate.Account, bool, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (accessgate.Account, bool, error) {
	var doc accountDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return accessgate.Account{}, false, nil
	}
	if err != nil {
		return accessgate.Account{}, false, err
	}
	return doc.account(), true, nil
}

// Save replaces the document with the account id, inserting it when absent.
func (s *Store) Save(ctx context.Context, a accessgate.Account) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": a.ID}, toDoc(a), options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", accessgate.ErrAccountExists, err)
	}
	return err
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.coll.EstimatedDocumentCount(ctx)
}
