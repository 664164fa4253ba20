package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/query"
	"github.com/sakif/readrealm/internal/repository"
)

// DefaultChatPollInterval is how often an open chat re-fetches its messages.
const DefaultChatPollInterval = 3 * time.Second

// ChatService runs group chat. There is no push channel: an open chat polls
// the messages key while anyone is watching it.
type ChatService struct {
	groups       repository.GroupRepository
	messages     repository.MessageRepository
	cache        *query.Client
	logger       *slog.Logger
	pollInterval time.Duration
}

func NewChatService(
	groups repository.GroupRepository,
	messages repository.MessageRepository,
	cache *query.Client,
	pollInterval time.Duration,
	logger *slog.Logger,
) *ChatService {
	if pollInterval <= 0 {
		pollInterval = DefaultChatPollInterval
	}
	return &ChatService{
		groups:       groups,
		messages:     messages,
		cache:        cache,
		logger:       logger,
		pollInterval: pollInterval,
	}
}

// Groups lists every group, newest first.
func (s *ChatService) Groups(ctx context.Context) ([]model.Group, error) {
	groups, err := query.Query(ctx, s.cache, allGroups, func(ctx context.Context) ([]model.Group, error) {
		return s.groups.ListGroups(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("service/chat: listing groups: %w", err)
	}
	if groups == nil {
		groups = []model.Group{}
	}
	return groups, nil
}

func (s *ChatService) CreateGroup(ctx context.Context, userID, name string) (*model.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.Required("name")
	}

	g, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (*model.Group, error) {
		g := &model.Group{Name: name, CreatedBy: userID}
		return g, s.groups.InsertGroup(ctx, g)
	}, allGroups)
	if err != nil {
		s.logger.Error("failed to create group", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/chat: creating group %q: %w", name, err)
	}

	s.logger.Info("group created", slog.String("id", g.ID), slog.String("created_by", userID))
	return g, nil
}

// Group returns one group. It is read straight from the gateway.
func (s *ChatService) Group(ctx context.Context, groupID string) (*model.Group, error) {
	if groupID == "" {
		return nil, apperror.Required("group id")
	}
	g, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("service/chat: %w", err)
	}
	return g, nil
}

// Messages returns a group's whole history, newest first.
func (s *ChatService) Messages(ctx context.Context, groupID string) ([]model.Message, error) {
	if groupID == "" {
		return nil, apperror.Required("group id")
	}
	msgs, err := query.Query(ctx, s.cache, messagesKey(groupID), s.messageFetcher(groupID))
	if err != nil {
		return nil, fmt.Errorf("service/chat: messages for %s: %w", groupID, err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// Watch subscribes to a group's messages. The key is re-fetched every poll
// interval until the last watcher closes its subscription.
func (s *ChatService) Watch(groupID string) *query.Subscription {
	return s.cache.Poll(messagesKey(groupID), query.Erase(s.messageFetcher(groupID)), s.pollInterval)
}

func (s *ChatService) SendMessage(ctx context.Context, userID, groupID, text string) (*model.Message, error) {
	if groupID == "" {
		return nil, apperror.Required("group id")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.Required("text")
	}

	m, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (*model.Message, error) {
		m := &model.Message{GroupID: groupID, UserID: userID, Text: text}
		return m, s.messages.InsertMessage(ctx, m)
	}, messagesKey(groupID))
	if err != nil {
		s.logger.Error("failed to send message",
			slog.String("group", groupID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/chat: sending to %s: %w", groupID, err)
	}
	return m, nil
}

func (s *ChatService) messageFetcher(groupID string) func(context.Context) ([]model.Message, error) {
	return func(ctx context.Context) ([]model.Message, error) {
		return s.messages.ListMessagesByGroup(ctx, groupID)
	}
}
