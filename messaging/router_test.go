package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/db"
	"switchboard/models"
)

const business = "tgs-default"

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

// Now advances one second per call so every message has a distinct timestamp.
func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *stepClock) Rewind(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(-d)
	c.mu.Unlock()
}

func newGormTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	gdb.DB().SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { gdb.Close() })
	return gdb
}

type storeFactory struct {
	name string
	new  func(t *testing.T) Store
}

var storeFactories = []storeFactory{
	{"memory", func(*testing.T) Store { return NewMemoryStore() }},
	{"gorm", func(t *testing.T) Store { return NewGormStore(newGormTestDB(t)) }},
}

func newTestRouter(t *testing.T, store Store) (*Router, *stepClock) {
	clock := &stepClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	r := NewRouter(store, slog.New(slog.NewTextHandler(io.Discard, nil)), business)
	r.SetClock(clock.Now)
	return r, clock
}

func forEachStore(t *testing.T, fn func(t *testing.T, r *Router, clock *stepClock)) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			r, clock := newTestRouter(t, f.new(t))
			fn(t, r, clock)
		})
	}
}

func TestRouter_TireQuoteScenario(t *testing.T) {
	forEachStore(t, func(t *testing.T, r *Router, _ *stepClock) {
		ctx := context.Background()

		in, err := r.HandleIncomingMessage(ctx, "+15551234567", "Looking for 225/65R17 tires", models.CHANNEL_SMS, "",
			models.Metadata{models.META_PROVIDER_MESSAGE_ID: "SM123"})
		require.NoError(t, err)

		conv, err := r.GetConversation(ctx, in.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, models.CHANNEL_SMS, conv.Channel)
		assert.Equal(t, business, conv.BusinessID)
		assert.Equal(t, models.CONVERSATION_STATUS_ACTIVE, conv.Status)
		require.Len(t, conv.Messages, 1)
		assert.Equal(t, models.MESSAGE_STATUS_UNREAD, conv.Messages[0].Status)
		assert.Equal(t, "SM123", conv.Messages[0].Metadata[models.META_PROVIDER_MESSAGE_ID])

		reply, err := r.SendReply(ctx, conv.ID, "We have those in stock", "agent1", in.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CHANNEL_SMS, reply.Channel)

		conv, err = r.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, conv.Messages, 2)
		second := conv.Messages[1]
		assert.Equal(t, reply.ID, second.ID)
		assert.Equal(t, models.DIRECTION_OUTBOUND, second.Direction)
		assert.Equal(t, models.MESSAGE_STATUS_READ, second.Status)
		assert.Equal(t, "agent1", second.From)
		assert.Equal(t, in.ID, second.Metadata[models.META_IN_REPLY_TO])

		ok, err := r.CloseConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		conv, _ = r.GetConversation(ctx, conv.ID)
		assert.Equal(t, models.CONVERSATION_STATUS_CLOSED, conv.Status)

		ok, err = r.ArchiveConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		conv, _ = r.GetConversation(ctx, conv.ID)
		assert.Equal(t, models.CONVERSATION_STATUS_ARCHIVED, conv.Status)

		ok, err = r.CloseConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRouter_ConcurrentFirstContactCreatesOneConversation(t *testing.T) {
	forEachStore(t, func(t *testing.T, r *Router, _ *stepClock) {
		ctx := context.Background()
		const n = 40

		var wg sync.WaitGroup
		ids := make([]string, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				msg, err := r.HandleIncomingMessage(ctx, "new.customer@example.com", fmt.Sprintf("message %d", i), models.CHANNEL_EMAIL, business, nil)
				ids[i], errs[i] = msg.ConversationID, err
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}

		list, err := r.GetActiveConversations(ctx, business)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Len(t, list[0].Messages, n)
		for i := 1; i < n; i++ {
			prev, cur := list[0].Messages[i-1], list[0].Messages[i]
			assert.Less(t, prev.Seq, cur.Seq)
			assert.False(t, cur.Timestamp.Before(prev.Timestamp))
		}
	})
}

func TestRouter_ConcurrentDistinctIdentities(t *testing.T) {
	forEachStore(t, func(t *testing.T, r *Router, _ *stepClock) {
		ctx := context.Background()
		const n = 20

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 3; j++ {
					_, err := r.HandleIncomingMessage(ctx, fmt.Sprintf("+1555000%04d", i), "hi", models.CHANNEL_SMS, business, nil)
					assert.NoError(t, err)
				}
			}(i)
		}
		wg.Wait()

		list, err := r.GetActiveConversations(ctx, business)
		require.NoError(t, err)
		require.Len(t, list, n)
		for _, conv := range list {
			assert.Len(t, conv.Messages, 3)
		}
	})
}

func TestRouter_MarkConversationAsReadIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, r *Router, _ *stepClock) {
		ctx := context.Background()
		first, err := r.HandleIncomingMessage(ctx, "+15551234567", "one", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)
		_, err = r.HandleIncomingMessage(ctx, "+15551234567", "two", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)
		_, err = r.SendReply(ctx, first.ConversationID, "hello", "agent1", "")
		require.NoError(t, err)

		require.NoError(t, r.MarkConversationAsRead(ctx, first.ConversationID, "agent1"))
		once, err := r.GetConversation(ctx, first.ConversationID)
		require.NoError(t, err)

		require.NoError(t, r.MarkConversationAsRead(ctx, first.ConversationID, "agent1"))
		twice, err := r.GetConversation(ctx, first.ConversationID)
		require.NoError(t, err)

		assert.Equal(t, 0, twice.UnreadCount())
		require.Len(t, twice.Messages, 3)
		for i := range once.Messages {
			assert.Equal(t, once.Messages[i].Status, twice.Messages[i].Status)
		}
		assert.True(t, once.UpdatedAt.Equal(twice.UpdatedAt))

		assert.ErrorIs(t, r.MarkConversationAsRead(ctx, "missing", "agent1"), ErrNotFound)
	})
}

func TestRouter_ArchivedIdentityStartsFreshConversation(t *testing.T) {
	forEachStore(t, func(t *testing.T, r *Router, _ *stepClock) {
		ctx := context.Background()
		old, err := r.HandleIncomingMessage(ctx, "+15551234567", "first visit", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)

		ok, err := r.ArchiveConversation(ctx, old.ConversationID)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = r.ArchiveConversation(ctx, old.ConversationID)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = r.ReopenConversation(ctx, old.ConversationID)
		require.NoError(t, err)
		assert.False(t, ok)

		fresh, err := r.HandleIncomingMessage(ctx, "+15551234567", "back again", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)
		assert.NotEqual(t, old.ConversationID, fresh.ConversationID)

		list, err := r.GetActiveConversations(ctx, business)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, fresh.ConversationID, list[0].ID)

		archived, err := r.GetConversation(ctx, old.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, models.CONVERSATION_STATUS_ARCHIVED, archived.Status)
		assert.Len(t, archived.Messages, 1)

		_, err = r.SendReply(ctx, old.ConversationID, "too late", "agent1", "")
		assert.ErrorIs(t, err, ErrArchived)
	})
}

func TestRouter_ClosedConversationReactivatesOnInbound(t *testing.T) {
	forEachStore(t, func(t *testing.T, r *Router, _ *stepClock) {
		ctx := context.Background()
		msg, err := r.HandleIncomingMessage(ctx, "+15551234567", "hi", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)

		ok, err := r.CloseConversation(ctx, msg.ConversationID)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = r.CloseConversation(ctx, msg.ConversationID)
		require.NoError(t, err)
		assert.True(t, ok, "closing a closed conversation is a no-op")

		again, err := r.HandleIncomingMessage(ctx, "+15551234567", "one more thing", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)
		assert.Equal(t, msg.ConversationID, again.ConversationID)

		conv, err := r.GetConversation(ctx, msg.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, models.CONVERSATION_STATUS_ACTIVE, conv.Status)

		ok, err = r.CloseConversation(ctx, msg.ConversationID)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = r.ReopenConversation(ctx, msg.ConversationID)
		require.NoError(t, err)
		assert.True(t, ok)
		conv, _ = r.GetConversation(ctx, msg.ConversationID)
		assert.Equal(t, models.CONVERSATION_STATUS_ACTIVE, conv.Status)
	})
}

func TestRouter_ChannelFollowsLatestInbound(t *testing.T) {
	forEachStore(t, func(t *testing.T, r *Router, _ *stepClock) {
		ctx := context.Background()
		_, err := r.HandleIncomingMessage(ctx, "Jane@Example.com", "via email", models.CHANNEL_EMAIL, business,
			models.Metadata{models.META_SUBJECT: "Tires"})
		require.NoError(t, err)
		msg, err := r.HandleIncomingMessage(ctx, "jane@example.com", "via the form", models.CHANNEL_IN_APP, business, nil)
		require.NoError(t, err)

		reply, err := r.SendReply(ctx, msg.ConversationID, "got it", "agent1", "")
		require.NoError(t, err)
		assert.Equal(t, models.CHANNEL_IN_APP, reply.Channel)

		conv, err := r.GetConversation(ctx, msg.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, "jane@example.com", conv.CustomerIdentity)
		assert.Equal(t, models.CHANNEL_IN_APP, conv.Channel)
		assert.Len(t, conv.Messages, 3)
	})
}

func TestRouter_ListOrdersByLatestActivity(t *testing.T) {
	forEachStore(t, func(t *testing.T, r *Router, _ *stepClock) {
		ctx := context.Background()
		a, err := r.HandleIncomingMessage(ctx, "+15550000001", "a", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)
		b, err := r.HandleIncomingMessage(ctx, "+15550000002", "b", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)
		_, err = r.HandleIncomingMessage(ctx, "+15550000003", "other tenant", models.CHANNEL_SMS, "another-shop", nil)
		require.NoError(t, err)

		list, err := r.GetActiveConversations(ctx, business)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, b.ConversationID, list[0].ID)

		_, err = r.SendReply(ctx, a.ConversationID, "reply bumps activity", "agent1", "")
		require.NoError(t, err)
		_, err = r.CloseConversation(ctx, b.ConversationID)
		require.NoError(t, err)

		list, err = r.GetActiveConversations(ctx, "")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, a.ConversationID, list[0].ID)
		assert.Equal(t, models.CONVERSATION_STATUS_CLOSED, list[1].Status)
	})
}

func TestRouter_TimestampsNeverGoBackwards(t *testing.T) {
	forEachStore(t, func(t *testing.T, r *Router, clock *stepClock) {
		ctx := context.Background()
		first, err := r.HandleIncomingMessage(ctx, "+15551234567", "one", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)

		clock.Rewind(time.Hour)
		second, err := r.HandleIncomingMessage(ctx, "+15551234567", "two", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)
		assert.True(t, second.Timestamp.Equal(first.Timestamp))
		assert.Greater(t, second.Seq, first.Seq)
	})
}

func TestRouter_RejectsInvalidCalls(t *testing.T) {
	forEachStore(t, func(t *testing.T, r *Router, _ *stepClock) {
		ctx := context.Background()

		_, err := r.HandleIncomingMessage(ctx, "  ", "hi", models.CHANNEL_SMS, business, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = r.HandleIncomingMessage(ctx, "+15551234567", "hi", "fax", business, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = r.SendReply(ctx, "missing", "hello", "agent1", "")
		assert.ErrorIs(t, err, ErrNotFound)

		msg, err := r.HandleIncomingMessage(ctx, "+15551234567", "hi", models.CHANNEL_SMS, business, nil)
		require.NoError(t, err)
		_, err = r.SendReply(ctx, msg.ConversationID, "   ", "agent1", "")
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = r.SendReply(ctx, msg.ConversationID, "hello", "agent1", "not-a-message-here")
		assert.ErrorIs(t, err, ErrInvalidInput)

		conv, err := r.GetConversation(ctx, msg.ConversationID)
		require.NoError(t, err)
		assert.Len(t, conv.Messages, 1, "rejected replies leave no trace")

		_, err = r.GetConversation(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		ok, err := r.CloseConversation(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = r.ArchiveConversation(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	r, _ := newTestRouter(t, store)
	ctx := context.Background()

	msg, err := r.HandleIncomingMessage(ctx, "+15551234567", "hi", models.CHANNEL_SMS, business,
		models.Metadata{models.META_PROVIDER_MESSAGE_ID: "SM1"})
	require.NoError(t, err)

	conv, err := store.Get(ctx, msg.ConversationID)
	require.NoError(t, err)
	conv.Messages[0].Body = "tampered"
	conv.Messages[0].Metadata[models.META_PROVIDER_MESSAGE_ID] = "tampered"

	again, err := store.Get(ctx, msg.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Messages[0].Body)
	assert.Equal(t, "SM1", again.Messages[0].Metadata[models.META_PROVIDER_MESSAGE_ID])
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("route")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.size())
}
