package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/staffdeck/realtime-api/internal/model"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error)
	// MarkRead flips the read flag for one notification owned by userID.
	// Already-read notifications are a no-op; both cases return nil.
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	// MarkReadBatch flips the read flag for every listed notification
	// owned by userID and returns how many rows changed.
	MarkReadBatch(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

type CallLogRepository interface {
	// Insert stores one terminal call record. It reports false when a
	// record for the session id already exists, making replays harmless.
	Insert(ctx context.Context, log *model.CallLog) (bool, error)
	// ListForUser returns history where userID was caller or receiver,
	// newest first.
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.CallLog, error)
}
