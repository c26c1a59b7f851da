package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"commute-chat/domain"
	"commute-chat/errors"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRepository(t *testing.T, pageSize int) *MessageRepository {
	t.Helper()
	repository, err := NewMessageRepository(openTestDB(t), slog.Default(), pageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close() })
	return repository
}

func Test_Append_Assigns_Id_Timestamp_And_Unread(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, DefaultPageSize)

	// When Alice sends a message to Bob
	msg, err := repository.Append("alice", "bob", "hi")

	// Then the stored form carries server-assigned fields
	req.NoError(err)
	req.NotEqual("00000000-0000-0000-0000-000000000000", msg.ID.String())
	req.Equal("alice", msg.From)
	req.Equal("bob", msg.To)
	req.False(msg.Read)
	req.WithinDuration(time.Now().UTC(), msg.CreatedAt, time.Minute)
}

func Test_Page_Returns_Ascending_Order(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, DefaultPageSize)

	// Given a conversation written in both directions
	_, err := repository.Append("alice", "bob", "first")
	req.NoError(err)
	_, err = repository.Append("bob", "alice", "second")
	req.NoError(err)
	_, err = repository.Append("alice", "bob", "third")
	req.NoError(err)

	// When fetching without a cursor
	messages, cursor, err := repository.Page("alice", "bob", nil)

	// Then messages come back oldest first regardless of query direction
	req.NoError(err)
	req.NotNil(cursor)
	req.Equal([]string{"first", "second", "third"},
		lo.Map(messages, func(m domain.Message, _ int) string { return m.Text }))
	for i := 1; i < len(messages); i++ {
		req.False(messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
	}
}

func Test_Page_Cursor_Walks_Full_History_Without_Gaps(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, DefaultPageSize)

	// Given 25 stored messages between Alice and Bob
	total := 25
	for i := 0; i < total; i++ {
		_, err := repository.Append("alice", "bob", "hello")
		req.NoError(err)
	}

	// When fetching the first page without a cursor
	first, cursor, err := repository.Page("alice", "bob", nil)
	req.NoError(err)
	req.Len(first, DefaultPageSize)

	// And fetching again with the returned cursor
	second, _, err := repository.Page("alice", "bob", cursor)
	req.NoError(err)

	// Then the remainder arrives and, being short, signals exhaustion
	req.Len(second, total-DefaultPageSize)

	// And no message is repeated or skipped across pages
	seen := map[string]struct{}{}
	for _, m := range append(second, first...) {
		_, duplicate := seen[m.ID.String()]
		req.False(duplicate)
		seen[m.ID.String()] = struct{}{}
	}
	req.Len(seen, total)

	// And the second page is strictly older than the first
	oldestOfFirst := first[0].CreatedAt
	newestOfSecond := second[len(second)-1].CreatedAt
	req.False(newestOfSecond.After(oldestOfFirst))
}

func Test_Page_Same_Timestamp_Messages_Keep_Insertion_Order(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, 2)

	// Given three messages stored at the exact same nanosecond
	frozen := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	repository.now = func() time.Time { return frozen }
	for _, text := range []string{"one", "two", "three"} {
		_, err := repository.Append("alice", "bob", text)
		req.NoError(err)
	}

	// When paging through with a page size of two
	first, cursor, err := repository.Page("alice", "bob", nil)
	req.NoError(err)
	second, _, err := repository.Page("alice", "bob", cursor)
	req.NoError(err)

	// Then the sequence tie-break preserves a total order with no overlap
	req.Equal([]string{"two", "three"},
		lo.Map(first, func(m domain.Message, _ int) string { return m.Text }))
	req.Equal([]string{"one"},
		lo.Map(second, func(m domain.Message, _ int) string { return m.Text }))
}

func Test_Page_Empty_Conversation(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, DefaultPageSize)

	messages, cursor, err := repository.Page("alice", "bob", nil)

	req.NoError(err)
	req.Empty(messages)
	req.Nil(cursor)
}

func Test_Page_Rejects_Malformed_Cursor(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, DefaultPageSize)

	_, err := repository.Append("alice", "bob", "hello")
	req.NoError(err)

	// Cursors are opaque key remainders; anything else is refused outright
	for _, cursor := range []string{"garbage", "msg:alice:bob:0", "123:456", ""} {
		before := cursor
		_, _, err := repository.Page("alice", "bob", &before)
		req.ErrorIs(err, errors.ErrInvalidCursor)
	}
}

func Test_Page_Unissued_Cursor_Does_Not_Skip_Newest(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, DefaultPageSize)

	// Given a short conversation
	for _, text := range []string{"one", "two", "three"} {
		_, err := repository.Append("alice", "bob", text)
		req.NoError(err)
	}

	// When paging with a well-formed cursor that was never issued and
	// sorts above every stored key
	fabricated := "9999999999999999999:999999999999"
	messages, _, err := repository.Page("alice", "bob", &fabricated)

	// Then the newest message is still part of the page
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal("three", messages[2].Text)
}

func Test_MarkRead_Is_Idempotent_And_Directional(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, DefaultPageSize)

	// Given unread traffic in both directions
	_, err := repository.Append("alice", "bob", "from alice")
	req.NoError(err)
	_, err = repository.Append("bob", "alice", "from bob")
	req.NoError(err)

	// When Bob marks Alice's messages as read, twice
	req.NoError(repository.MarkRead("alice", "bob"))
	req.NoError(repository.MarkRead("alice", "bob"))

	// Then only the alice -> bob direction flipped, exactly once
	messages, _, err := repository.Page("alice", "bob", nil)
	req.NoError(err)
	req.Len(messages, 2)
	for _, m := range messages {
		if m.From == "alice" {
			req.True(m.Read)
		} else {
			req.False(m.Read)
		}
	}

	count, err := repository.UnreadCount("alice", "bob")
	req.NoError(err)
	req.Zero(count)

	count, err = repository.UnreadCount("bob", "alice")
	req.NoError(err)
	req.Equal(1, count)
}

func Test_MarkRead_Flips_Backlogs_Larger_Than_One_Batch(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, DefaultPageSize)
	repository.markReadBatch = 3

	// Given a backlog spanning several rewrite batches
	for i := 0; i < 8; i++ {
		_, err := repository.Append("alice", "bob", "unread")
		req.NoError(err)
	}

	// When Bob marks the conversation read
	req.NoError(repository.MarkRead("alice", "bob"))

	// Then every row flipped, across batch boundaries
	count, err := repository.UnreadCount("alice", "bob")
	req.NoError(err)
	req.Zero(count)
}

func Test_LastMessage_Tracks_Latest_Entry(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, DefaultPageSize)

	// Given no traffic yet
	_, found, err := repository.LastMessage("alice", "bob")
	req.NoError(err)
	req.False(found)

	// When messages arrive
	_, err = repository.Append("alice", "bob", "older")
	req.NoError(err)
	_, err = repository.Append("bob", "alice", "newer")
	req.NoError(err)

	// Then the latest one wins, from either direction
	last, found, err := repository.LastMessage("alice", "bob")
	req.NoError(err)
	req.True(found)
	req.Equal("newer", last.Text)
}
