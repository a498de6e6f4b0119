package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"eventhub-backend/internal/platform/metrics"
	"eventhub-backend/internal/utils"
)

type ChatServiceTestSuite struct {
	suite.Suite
	fx       *fixtures
	notifier *recordingNotifier
	chat     *ChatService
	ctx      context.Context
}

func (s *ChatServiceTestSuite) SetupTest() {
	db := setupTestDB(s.T())
	s.fx = newFixtures(s.T(), db)
	s.notifier = &recordingNotifier{}
	s.chat = NewChatService(db, zap.NewNop(), metrics.NewManager("test"), s.notifier)
	s.ctx = context.Background()

	s.fx.client("alice")
	s.fx.client("bob")
	s.fx.client("eve")
}

func TestChatServiceSuite(t *testing.T) {
	suite.Run(t, new(ChatServiceTestSuite))
}

func (s *ChatServiceTestSuite) TestConversationIsSymmetric() {
	first, created, err := s.chat.GetOrCreateConversation(s.ctx, "alice", "bob", nil)
	s.Require().NoError(err)
	s.True(created)

	second, created, err := s.chat.GetOrCreateConversation(s.ctx, "bob", "alice", nil)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)
}

func (s *ChatServiceTestSuite) TestConcurrentOpenYieldsOneConversation() {
	var wg sync.WaitGroup
	ids := make(chan string, 6)
	for i := 0; i < 6; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = to, from
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, _, err := s.chat.GetOrCreateConversation(s.ctx, from, to, nil)
			s.NoError(err)
			if conv != nil {
				ids <- conv.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	s.Len(seen, 1)
}

func (s *ChatServiceTestSuite) TestConversationValidation() {
	_, _, err := s.chat.GetOrCreateConversation(s.ctx, "alice", "alice", nil)
	var verrs utils.ValidationErrors
	s.True(errors.As(err, &verrs))

	_, _, err = s.chat.GetOrCreateConversation(s.ctx, "alice", "nobody", nil)
	s.ErrorIs(err, ErrNotFound)

	missing := "no-such-listing"
	_, _, err = s.chat.GetOrCreateConversation(s.ctx, "alice", "bob", &missing)
	s.ErrorIs(err, ErrNotFound)

	s.fx.vendor("vendor-1", "Acme")
	listing := s.fx.listing("vendor-1", "Buffet", "100")
	conv, _, err := s.chat.GetOrCreateConversation(s.ctx, "alice", "vendor-1", &listing.ID)
	s.Require().NoError(err)
	s.Require().NotNil(conv.ServiceID)
	s.Equal(listing.ID, *conv.ServiceID)
}

func (s *ChatServiceTestSuite) TestSendMessageUpdatesPreviewAndNotifies() {
	conv, _, err := s.chat.GetOrCreateConversation(s.ctx, "alice", "bob", nil)
	s.Require().NoError(err)

	long := strings.Repeat("á", 150)
	msg, err := s.chat.SendMessage(s.ctx, conv.ID, "alice", "  "+long+"  ")
	s.Require().NoError(err)
	s.Equal(long, msg.Content)
	s.False(msg.IsRead)

	stored, err := s.chat.GetConversation(s.ctx, conv.ID, "bob")
	s.Require().NoError(err)
	s.Require().NotNil(stored.LastMessage)
	s.Equal(100, len([]rune(*stored.LastMessage)))
	s.Require().NotNil(stored.LastMessageAt)
	s.True(stored.LastMessageAt.Equal(msg.CreatedAt))

	s.Equal(1, s.notifier.forUser("alice", EventNewMessage))
	s.Equal(1, s.notifier.forUser("bob", EventNewMessage))
}

func (s *ChatServiceTestSuite) TestNonParticipantCannotSendOrRead() {
	conv, _, err := s.chat.GetOrCreateConversation(s.ctx, "alice", "bob", nil)
	s.Require().NoError(err)

	_, err = s.chat.SendMessage(s.ctx, conv.ID, "eve", "hello")
	s.ErrorIs(err, ErrForbidden)

	_, err = s.chat.ListMessages(s.ctx, conv.ID, "eve")
	s.ErrorIs(err, ErrForbidden)

	_, err = s.chat.SendMessage(s.ctx, "missing", "alice", "hello")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.chat.SendMessage(s.ctx, conv.ID, "alice", "   ")
	var verrs utils.ValidationErrors
	s.True(errors.As(err, &verrs))
}

func (s *ChatServiceTestSuite) TestMessagesAreOrderedAndMarkedRead() {
	conv, _, err := s.chat.GetOrCreateConversation(s.ctx, "alice", "bob", nil)
	s.Require().NoError(err)

	for _, text := range []string{"one", "two", "three"} {
		_, err := s.chat.SendMessage(s.ctx, conv.ID, "alice", text)
		s.Require().NoError(err)
	}
	_, err = s.chat.SendMessage(s.ctx, conv.ID, "bob", "reply")
	s.Require().NoError(err)

	unread, err := s.chat.CountUnread(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(3, unread)

	summaries, err := s.chat.ListConversations(s.ctx, "bob")
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.Equal("alice", summaries[0].OtherUser.ID)
	s.Equal(3, summaries[0].UnreadCount)

	messages, err := s.chat.ListMessages(s.ctx, conv.ID, "bob")
	s.Require().NoError(err)
	s.Require().Len(messages, 4)
	for i := 1; i < len(messages); i++ {
		s.True(messages[i].CreatedAt.After(messages[i-1].CreatedAt), "message %d not after %d", i, i-1)
	}
	s.Equal("one", messages[0].Content)
	s.Equal("reply", messages[3].Content)
	for _, m := range messages[:3] {
		s.True(m.IsRead)
		s.NotNil(m.ReadAt)
	}
	// bob's own message stays unread until alice opens the conversation
	s.False(messages[3].IsRead)

	unread, err = s.chat.CountUnread(s.ctx, "bob")
	s.Require().NoError(err)
	s.Zero(unread)
	s.Equal(1, s.notifier.forUser("alice", EventMessagesRead))

	unread, err = s.chat.CountUnread(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(1, unread)
}

func (s *ChatServiceTestSuite) TestListConversationsMostRecentFirst() {
	withBob, _, err := s.chat.GetOrCreateConversation(s.ctx, "alice", "bob", nil)
	s.Require().NoError(err)
	withEve, _, err := s.chat.GetOrCreateConversation(s.ctx, "alice", "eve", nil)
	s.Require().NoError(err)

	_, err = s.chat.SendMessage(s.ctx, withEve.ID, "eve", "first")
	s.Require().NoError(err)
	_, err = s.chat.SendMessage(s.ctx, withBob.ID, "bob", "latest")
	s.Require().NoError(err)

	summaries, err := s.chat.ListConversations(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(summaries, 2)
	s.Equal(withBob.ID, summaries[0].ID)
	s.Equal("Test", summaries[0].OtherUser.FirstName)

	none, err := s.chat.ListConversations(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(none)
}
