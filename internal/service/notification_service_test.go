package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
)

type memoryNotificationRepo struct {
	items []models.Notification
}

func (m *memoryNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	notification.ID = uint(len(m.items) + 1)
	notification.CreatedAt = time.Now()
	m.items = append(m.items, *notification)
	return nil
}

func (m *memoryNotificationRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	out := make([]models.Notification, 0)
	for _, item := range m.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

func TestNotificationServicePublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "gema:test:notifications")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, client, "gema:test", nil, validator.New(), testLogger())

	response, err := svc.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  "42",
		Type:    "assessment.reminder",
		Message: "<i>Quiz</i> starts at 10:00 UTC",
	})
	require.NoError(t, err)
	require.Equal(t, "Quiz starts at 10:00 UTC", response.Message)

	select {
	case msg := <-sub.Channel():
		var event notificationEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		require.Equal(t, "42", event.Notification.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not published")
	}

	items, err := svc.List(ctx, "42", 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestNotificationServiceRejectsEmptyMessage(t *testing.T) {
	svc := NewNotificationService(&memoryNotificationRepo{}, nil, "", nil, validator.New(), testLogger())

	_, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{UserID: "1", Type: "x", Message: "<script>alert(1)</script>"})
	require.Error(t, err)

	_, err = svc.List(context.Background(), " ", 10, 0)
	require.Error(t, err)
}

func TestSessionEventPublisherFansOutToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "gema:test:sessions")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewSessionEventPublisher(client, nil, "gema:test", testLogger())
	require.NoError(t, publisher.Publish(ctx, SessionEvent{Type: SessionEventSubmitted, SessionID: 7}))

	select {
	case msg := <-sub.Channel():
		var event SessionEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		require.Equal(t, uint(7), event.SessionID)
		require.Equal(t, SessionEventSubmitted, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("session event not published")
	}
}

type recordingAMQPChannel struct {
	exchange string
	key      string
	message  amqp.Publishing
	err      error
}

func (c *recordingAMQPChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange = exchange
	c.key = key
	c.message = msg
	return c.err
}

func TestSessionEventPublisherRoutesToAMQP(t *testing.T) {
	channel := &recordingAMQPChannel{}
	occurred := time.Date(2025, 3, 3, 11, 10, 0, 0, time.UTC)

	publisher := NewSessionEventPublisher(nil, nil, "", testLogger(), WithAMQP(channel, "gema.assessments"))
	require.NoError(t, publisher.Publish(context.Background(), SessionEvent{Type: SessionEventGraded, SessionID: 9, OccurredAt: occurred}))

	require.Equal(t, "gema.assessments", channel.exchange)
	require.Equal(t, SessionEventGraded, channel.key)
	require.Equal(t, "application/json", channel.message.ContentType)
	require.Equal(t, amqp.Persistent, channel.message.DeliveryMode)
	require.True(t, channel.message.Timestamp.Equal(occurred))

	var event SessionEvent
	require.NoError(t, json.Unmarshal(channel.message.Body, &event))
	require.Equal(t, uint(9), event.SessionID)

	channel.err = errors.New("channel closed")
	require.Error(t, publisher.Publish(context.Background(), SessionEvent{Type: SessionEventSubmitted}))
}
