//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"commute-chat/domain"
	"commute-chat/errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// DefaultPageSize is the fixed history page size served to the UI.
const DefaultPageSize = 20

type IMessageRepository interface {
	Append(from, to, text string) (domain.Message, error)
	Page(user1, user2 string, before *string) ([]domain.Message, *string, error)
	MarkRead(from, to string) error
	LastMessage(user1, user2 string) (domain.Message, bool, error)
	UnreadCount(from, to string) (int, error)
	Close() error
}

// markReadBatchSize bounds how many rows a single MarkRead transaction
// rewrites, so a huge unread backlog never trips Badger's txn size limit.
const markReadBatchSize = 500

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	seq           *badger.Sequence
	pageSize      int
	now           func() time.Time // injectable clock for tests
	markReadBatch int
}

// messageRecord is the durable CBOR shape of a message. The read flag is the
// only field ever rewritten in place.
type messageRecord struct {
	ID   string `cbor:"id"`
	From string `cbor:"from"`
	To   string `cbor:"to"`
	Text string `cbor:"text"`
	At   int64  `cbor:"at"` // unix nanoseconds, server-assigned
	Read bool   `cbor:"read"`
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, pageSize int) (*MessageRepository, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	seq, err := db.GetSequence([]byte("seq:msg"), 128)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{
		db:            db,
		log:           log,
		seq:           seq,
		pageSize:      pageSize,
		now:           time.Now,
		markReadBatch: markReadBatchSize,
	}, nil
}

// Close releases the leased sequence range back to Badger.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

// conversationKey builds the shared prefix of a user pair. The pair is sorted
// so that both directions of the conversation land under the same prefix.
func conversationKey(user1, user2 string) string {
	if user1 > user2 {
		user1, user2 = user2, user1
	}
	return fmt.Sprintf("msg:%s:%s:", user1, user2)
}

// messageKey appends "{timestamp_padded}:{sequence_padded}" to the
// conversation prefix:
//  1. The 19-digit zero-padded timestamp makes lexicographical order
//     chronological.
//  2. The monotonic sequence number breaks ties between messages stored at
//     the same nanosecond, so the cursor describes a total order.
func messageKey(user1, user2 string, at time.Time, seq uint64) string {
	return fmt.Sprintf("%s%019d:%012d", conversationKey(user1, user2), at.UnixNano(), seq)
}

// cursorShape matches the key remainder handed out by Page:
// "{19-digit timestamp}:{12-digit sequence}".
var cursorShape = regexp.MustCompile(`^\d{19}:\d{12}$`)

// Append persists a new message with a server-assigned timestamp and read=false,
// and returns the stored form.
func (m *MessageRepository) Append(from, to, text string) (domain.Message, error) {
	seq, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("next sequence: %w", err)
	}
	msg := domain.Message{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		Text:      text,
		CreatedAt: m.now().UTC(),
		Read:      false,
	}
	value, err := cbor.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal message: %w", err)
	}
	key := []byte(messageKey(from, to, msg.CreatedAt, seq))
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Page returns up to one page of messages between two users, always ascending
// by timestamp. Without a cursor it returns the most recent page; with one it
// returns messages strictly older than the cursor. The returned cursor is the
// key remainder of the oldest entry, opaque to callers; a page shorter than
// the page size means no older history remains.
func (m *MessageRepository) Page(user1, user2 string, before *string) ([]domain.Message, *string, error) {
	if before != nil && !cursorShape.MatchString(*before) {
		return nil, nil, errors.ErrInvalidCursor
	}

	prefixStr := conversationKey(user1, user2)
	prefix := []byte(prefixStr)

	var raw [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch before {
		case nil:
			// Position past the newest possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*before)...)
		}

		it.Seek(seekKey)

		// The cursor names the oldest message already seen; skip it. A
		// shape-valid cursor we never issued lands on the nearest older
		// key instead, which must NOT be skipped.
		if before != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(raw) == m.pageSize {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			raw = append(raw, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, nil
	}

	// Collected newest-first; reverse into ascending order so the caller can
	// prepend the page onto an in-memory buffer directly.
	messages := make([]domain.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var rec messageRecord
		if err = cbor.Unmarshal(raw[i], &rec); err != nil {
			return nil, nil, err
		}
		msg, err := toMessage(rec)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}
	return messages, &lastKey, nil
}

// MarkRead flips read=true on every unread message sent by from to to.
// The operation is idempotent: rows already read are left untouched. The
// rewrite is committed in batches so the transaction never outgrows what
// Badger accepts; flipping is monotonic, so a crash between batches only
// leaves rows a retry will flip again.
func (m *MessageRepository) MarkRead(from, to string) error {
	prefix := []byte(conversationKey(from, to))

	for {
		rewritten := 0
		err := m.db.Update(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if rewritten == m.markReadBatch {
					return nil
				}
				item := it.Item()
				value, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				var rec messageRecord
				if err = cbor.Unmarshal(value, &rec); err != nil {
					return err
				}
				if rec.From != from || rec.To != to || rec.Read {
					continue
				}
				rec.Read = true
				updated, err := cbor.Marshal(rec)
				if err != nil {
					return err
				}
				if err = txn.Set(item.KeyCopy(nil), updated); err != nil {
					return err
				}
				rewritten++
			}
			return nil
		})
		if err != nil {
			return err
		}
		if rewritten < m.markReadBatch {
			return nil
		}
	}
}

// LastMessage returns the most recent message of a conversation, if any.
func (m *MessageRepository) LastMessage(user1, user2 string) (domain.Message, bool, error) {
	prefixStr := conversationKey(user1, user2)
	prefix := []byte(prefixStr)

	var found bool
	var rec messageRecord
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek(append(prefix, []byte("9999999999999999999")...))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		value, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		if err = cbor.Unmarshal(value, &rec); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return domain.Message{}, false, err
	}
	msg, err := toMessage(rec)
	if err != nil {
		return domain.Message{}, false, err
	}
	return msg, true, nil
}

// UnreadCount counts unread messages sent by from and addressed to to.
func (m *MessageRepository) UnreadCount(from, to string) (int, error) {
	prefix := []byte(conversationKey(from, to))
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec messageRecord
			if err = cbor.Unmarshal(value, &rec); err != nil {
				return err
			}
			if rec.From == from && rec.To == to && !rec.Read {
				count++
			}
		}
		return nil
	})
	return count, err
}

func fromMessage(msg domain.Message) messageRecord {
	return messageRecord{
		ID:   msg.ID.String(),
		From: msg.From,
		To:   msg.To,
		Text: msg.Text,
		At:   msg.CreatedAt.UnixNano(),
		Read: msg.Read,
	}
}

func toMessage(rec messageRecord) (domain.Message, error) {
	parsedID, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("message id %q: %w", rec.ID, err)
	}
	return domain.Message{
		ID:        parsedID,
		From:      rec.From,
		To:        rec.To,
		Text:      rec.Text,
		CreatedAt: time.Unix(0, rec.At).UTC(),
		Read:      rec.Read,
	}, nil
}

// DecodeRecord decodes a raw stored value. Shared with the inspection tooling.
func DecodeRecord(value []byte) (domain.Message, error) {
	var rec messageRecord
	if err := cbor.Unmarshal(value, &rec); err != nil {
		return domain.Message{}, err
	}
	return toMessage(rec)
}

// IsMessageKey reports whether a raw Badger key belongs to the message log.
func IsMessageKey(key string) bool {
	return strings.HasPrefix(key, "msg:")
}
