//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"commute-chat/domain"
	"commute-chat/errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// IUserRepository exposes the read surface the messaging core needs from the
// user store: existence checks at handshake time and the display/connection
// data behind conversation summaries. Put exists for seeding and tests;
// profile management itself is owned by another service.
type IUserRepository interface {
	Put(user domain.User) error
	Get(id string) (domain.User, error)
	Exists(id string) (bool, error)
	Connections(id string) ([]string, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// userRecord is the durable CBOR shape of a user row.
type userRecord struct {
	ID          string   `cbor:"id"`
	FirstName   string   `cbor:"first_name"`
	LastName    string   `cbor:"last_name"`
	ProfilePic  string   `cbor:"profile_pic"`
	Connections []string `cbor:"connections"`
	CreatedAt   int64    `cbor:"created_at"`
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func (u *UserRepository) Put(user domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	value, err := cbor.Marshal(fromUser(user))
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), value)
	})
}

func (u *UserRepository) Get(id string) (domain.User, error) {
	var rec userRecord
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(rec), nil
}

func (u *UserRepository) Exists(id string) (bool, error) {
	err := u.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(id))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (u *UserRepository) Connections(id string) ([]string, error) {
	user, err := u.Get(id)
	if err != nil {
		return nil, err
	}
	return user.Connections, nil
}

// DecodeUserRecord decodes a raw stored value. Shared with the inspection tooling.
func DecodeUserRecord(value []byte) (domain.User, error) {
	var rec userRecord
	if err := cbor.Unmarshal(value, &rec); err != nil {
		return domain.User{}, err
	}
	return toUser(rec), nil
}

// IsUserKey reports whether a raw Badger key belongs to the user store.
func IsUserKey(key string) bool {
	return strings.HasPrefix(key, "user:")
}

func fromUser(user domain.User) userRecord {
	return userRecord{
		ID:          user.ID,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		ProfilePic:  user.ProfilePic,
		Connections: user.Connections,
		CreatedAt:   user.CreatedAt.Unix(),
	}
}

func toUser(rec userRecord) domain.User {
	return domain.User{
		ID:          rec.ID,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		ProfilePic:  rec.ProfilePic,
		Connections: rec.Connections,
		CreatedAt:   time.Unix(rec.CreatedAt, 0).UTC(),
	}
}
