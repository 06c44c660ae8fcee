package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
	"github.com/noah-isme/judging-integrity-api/internal/models"
	"github.com/noah-isme/judging-integrity-api/internal/repository"
)

func TestNotificationServiceInbox(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Notification{
		UserID:   7,
		Title:    "Evaluation period locked",
		Priority: models.NotificationPriorityHigh,
		Category: NotificationCategoryLock,
		Status:   models.NotificationStatusDispatched,
	}).Error)

	svc := NewNotificationService(repository.NewNotificationRepository(db), nil, nil, NewNotificationChannels("node-a", ""), testLogger())
	ctx := context.Background()

	_, err := svc.List(ctx, 0, 10, 0)
	require.ErrorIs(t, err, ErrUnauthenticated)

	items, err := svc.List(ctx, 7, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.False(t, items[0].Read)

	read, err := svc.MarkRead(ctx, items[0].ID, 7)
	require.NoError(t, err)
	require.True(t, read.Read)

	_, err = svc.MarkRead(ctx, items[0].ID, 8)
	require.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestNotificationServiceDeliverReachesLocalSubscribers(t *testing.T) {
	svc := NewNotificationService(nil, nil, nil, NewNotificationChannels("node-a", ""), testLogger())

	stream, cleanup := svc.Subscribe(7)
	other, cleanupOther := svc.Subscribe(8)
	defer cleanupOther()

	require.NoError(t, svc.Deliver(context.Background(), dto.NotificationResponse{ID: 1, UserID: 7, Title: "locked"}))

	select {
	case notification := <-stream:
		require.Equal(t, uint(1), notification.ID)
	case <-time.After(time.Second):
		t.Fatal("expected notification on subscriber stream")
	}
	select {
	case <-other:
		t.Fatal("notification leaked to another user")
	default:
	}

	cleanup()
	cleanup()
	_, open := <-stream
	require.False(t, open)
}

func TestNotificationServiceRelaysRemoteRedisEvents(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiving := NewNotificationService(nil, client, nil, NewNotificationChannels("node-b", "judging"), testLogger())
	receiving.Start(ctx)
	stream, cleanup := receiving.Subscribe(7)
	defer cleanup()

	remote := NewRedisNotificationSink(client, NewNotificationChannels("node-a", "judging"))
	own := NewRedisNotificationSink(client, NewNotificationChannels("node-b", "judging"))

	require.Eventually(t, func() bool {
		if own.Deliver(ctx, dto.NotificationResponse{ID: 99, UserID: 7}) != nil {
			return false
		}
		if remote.Deliver(ctx, dto.NotificationResponse{ID: 2, UserID: 7, Title: "reopened"}) != nil {
			return false
		}
		select {
		case notification := <-stream:
			return notification.ID == 2
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	for {
		select {
		case notification := <-stream:
			require.NotEqual(t, uint(99), notification.ID, "events from the same node are not relayed")
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}
