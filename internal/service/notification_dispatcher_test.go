package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
	"github.com/noah-isme/judging-integrity-api/internal/models"
	"github.com/noah-isme/judging-integrity-api/internal/repository"
)

type recordingSink struct {
	name      string
	err       error
	delivered []dto.NotificationResponse
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, notification dto.NotificationResponse) error {
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, notification)
	return nil
}

func enqueue(t *testing.T, repo repository.EvaluationRepository, userIDs ...uint) {
	t.Helper()
	rows := make([]models.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.Notification{
			UserID:   id,
			Title:    "Evaluation period locked",
			Priority: models.NotificationPriorityHigh,
			Category: NotificationCategoryLock,
			Status:   models.NotificationStatusPending,
			Payload:  datatypes.JSONMap{"hackathon_id": 1},
		})
	}
	require.NoError(t, repo.EnqueueNotifications(context.Background(), rows))
}

func TestDispatcherMarksDeliveredRows(t *testing.T) {
	db := newTestDB(t)
	enqueue(t, repository.NewEvaluationRepository(db), 1, 2, 3)

	sink := &recordingSink{name: "memory"}
	dispatcher := NewNotificationDispatcher(repository.NewNotificationRepository(db), []NotificationSink{sink, NewLogNotificationSink(testLogger())}, DispatcherConfig{BatchSize: 10}, testLogger())

	dispatched, err := dispatcher.DispatchPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, dispatched)
	require.Len(t, sink.delivered, 3)

	var remaining int64
	require.NoError(t, db.Model(&models.Notification{}).Where("status = ?", models.NotificationStatusPending).Count(&remaining).Error)
	require.Zero(t, remaining)

	again, err := dispatcher.DispatchPending(context.Background())
	require.NoError(t, err)
	require.Zero(t, again)
}

func TestDispatcherRetriesThenFails(t *testing.T) {
	db := newTestDB(t)
	enqueue(t, repository.NewEvaluationRepository(db), 1)

	sink := &recordingSink{name: "broken", err: errors.New("broker offline")}
	dispatcher := NewNotificationDispatcher(repository.NewNotificationRepository(db), []NotificationSink{sink}, DispatcherConfig{MaxAttempts: 2}, testLogger())
	ctx := context.Background()

	_, err := dispatcher.DispatchPending(ctx)
	require.NoError(t, err)

	var row models.Notification
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, models.NotificationStatusPending, row.Status)
	require.Equal(t, 1, row.Attempts)
	require.Contains(t, row.LastError, "broken: broker offline")

	_, err = dispatcher.DispatchPending(ctx)
	require.NoError(t, err)
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, models.NotificationStatusFailed, row.Status)
	require.Equal(t, 2, row.Attempts)
}

func TestDispatcherRetriesOnlyFailedSinks(t *testing.T) {
	db := newTestDB(t)
	enqueue(t, repository.NewEvaluationRepository(db), 1)

	good := &recordingSink{name: "memory"}
	flaky := &recordingSink{name: "nats", err: errors.New("broker offline")}
	dispatcher := NewNotificationDispatcher(repository.NewNotificationRepository(db), []NotificationSink{good, flaky}, DispatcherConfig{}, testLogger())
	ctx := context.Background()

	dispatched, err := dispatcher.DispatchPending(ctx)
	require.NoError(t, err)
	require.Zero(t, dispatched)
	require.Len(t, good.delivered, 1)

	var row models.Notification
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, models.NotificationStatusPending, row.Status)
	require.Equal(t, []string{"memory"}, []string(row.DeliveredSinks))
	require.Nil(t, row.ClaimedUntil)

	flaky.err = nil
	dispatched, err = dispatcher.DispatchPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, dispatched)
	require.Len(t, good.delivered, 1, "the sink that already accepted the row is not sent it again")
	require.Len(t, flaky.delivered, 1)

	require.NoError(t, db.First(&row).Error)
	require.Equal(t, models.NotificationStatusDispatched, row.Status)
}

func TestDispatcherSkipsRowsClaimedElsewhere(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewNotificationRepository(db)
	enqueue(t, repository.NewEvaluationRepository(db), 1, 2)

	claimed, err := repo.ClaimPending(context.Background(), 1, time.Now().UTC(), time.Hour)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	sink := &recordingSink{name: "memory"}
	dispatcher := NewNotificationDispatcher(repo, []NotificationSink{sink}, DispatcherConfig{}, testLogger())

	dispatched, err := dispatcher.DispatchPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, dispatched)
	require.Len(t, sink.delivered, 1)
	require.NotEqual(t, claimed[0].ID, sink.delivered[0].ID)
}

func TestDispatcherKickDrainsInBackground(t *testing.T) {
	db := newTestDB(t)
	enqueue(t, repository.NewEvaluationRepository(db), 4)

	sink := &recordingSink{name: "memory"}
	dispatcher := NewNotificationDispatcher(repository.NewNotificationRepository(db), []NotificationSink{sink}, DispatcherConfig{Interval: time.Hour}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)
	dispatcher.Kick()
	dispatcher.Kick()

	require.Eventually(t, func() bool {
		var dispatched int64
		if err := db.Model(&models.Notification{}).Where("status = ?", models.NotificationStatusDispatched).Count(&dispatched).Error; err != nil {
			return false
		}
		return dispatched == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisSinkPublishesEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	channels := NewNotificationChannels("node-a", "judging")
	require.Equal(t, "judging:notifications", channels.RedisChannel)
	require.Equal(t, "judging.notifications", channels.NATSSubject)

	ctx := context.Background()
	pubsub := client.Subscribe(ctx, channels.RedisChannel)
	t.Cleanup(func() { _ = pubsub.Close() })
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	sink := NewRedisNotificationSink(client, channels)
	require.NoError(t, sink.Deliver(ctx, dto.NotificationResponse{ID: 9, UserID: 3, Title: "Evaluation period locked"}))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event notificationEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	require.Equal(t, "node-a", event.Source)
	require.Equal(t, uint(3), event.Notification.UserID)
}

func TestNotificationServiceStreamsAndMarksRead(t *testing.T) {
	db := newTestDB(t)
	enqueue(t, repository.NewEvaluationRepository(db), 5)
	notifications := NewNotificationService(repository.NewNotificationRepository(db), nil, nil, NewNotificationChannels("node-a", ""), testLogger())
	ctx := context.Background()

	stream, cleanup := notifications.Subscribe(5)
	defer cleanup()

	dispatcher := NewNotificationDispatcher(repository.NewNotificationRepository(db), []NotificationSink{notifications}, DispatcherConfig{}, testLogger())
	_, err := dispatcher.DispatchPending(ctx)
	require.NoError(t, err)

	select {
	case received := <-stream:
		require.Equal(t, uint(5), received.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected a streamed notification")
	}

	inbox, err := notifications.List(ctx, 5, 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.False(t, inbox[0].Read)

	read, err := notifications.MarkRead(ctx, inbox[0].ID, 5)
	require.NoError(t, err)
	require.True(t, read.Read)

	_, err = notifications.MarkRead(ctx, inbox[0].ID, 6)
	require.ErrorIs(t, err, ErrNotificationNotFound)

	_, err = notifications.List(ctx, 0, 10, 0)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNotificationServiceIgnoresOwnEvents(t *testing.T) {
	svc := NewNotificationService(nil, nil, nil, NewNotificationChannels("node-a", "judging"), testLogger()).(*notificationService)
	stream, cleanup := svc.Subscribe(8)
	defer cleanup()

	own, err := encodeNotificationEvent("node-a", dto.NotificationResponse{ID: 1, UserID: 8})
	require.NoError(t, err)
	svc.handleEvent(own)

	remote, err := encodeNotificationEvent("node-b", dto.NotificationResponse{ID: 2, UserID: 8})
	require.NoError(t, err)
	svc.handleEvent(remote)

	received := <-stream
	require.Equal(t, uint(2), received.ID)
	require.Len(t, stream, 0)
}
