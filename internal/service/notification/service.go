package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/staffdeck/realtime-api/internal/model"
	"github.com/staffdeck/realtime-api/internal/repository"
	"github.com/staffdeck/realtime-api/internal/service/dispatch"
	apperrors "github.com/staffdeck/realtime-api/pkg/errors"
	"github.com/staffdeck/realtime-api/pkg/messaging"
	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// CreateRequest is the input for creating and delivering a notification.
type CreateRequest struct {
	UserID   uuid.UUID         `json:"user_id" binding:"required"`
	Title    string            `json:"title" binding:"required"`
	Body     string            `json:"body"`
	Category realtime.Category `json:"category" binding:"required"`
	Metadata map[string]string `json:"metadata"`
	// Email enables the offline fallback for urgent categories.
	Email string `json:"email"`
}

type Service interface {
	// Create persists the notification and publishes it to the event
	// channel for realtime delivery.
	Create(ctx context.Context, req *CreateRequest) (*model.Notification, error)
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkReadBatch(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

type service struct {
	repo    repository.NotificationRepository
	broker  messaging.Broker
	channel string
	logger  zerolog.Logger
}

func NewService(repo repository.NotificationRepository, broker messaging.Broker, channel string, logger *zerolog.Logger) Service {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "notification_service").Logger()
	}
	return &service{
		repo:    repo,
		broker:  broker,
		channel: channel,
		logger:  log,
	}
}

func (s *service) Create(ctx context.Context, req *CreateRequest) (*model.Notification, error) {
	if !model.ValidCategory(req.Category) {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown category %q", req.Category), nil)
	}

	n := &model.Notification{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Title:     req.Title,
		Body:      req.Body,
		Category:  req.Category,
		Metadata:  model.Metadata(req.Metadata),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	if err := s.publish(ctx, n, req.Email); err != nil {
		// The row is durable; the client picks it up on its next fetch.
		s.logger.Error().Err(err).
			Str("notification_id", n.ID.String()).
			Msg("failed to publish notification event")
	}
	return n, nil
}

func (s *service) publish(ctx context.Context, n *model.Notification, email string) error {
	ev, err := realtime.NewEnvelope(realtime.EventNewNotification, n.Payload())
	if err != nil {
		return err
	}
	return s.broker.Publish(ctx, s.channel, dispatch.Routed{
		UserID: n.UserID,
		Email:  email,
		Event:  ev,
	})
}

func (s *service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error) {
	return s.repo.List(ctx, userID, unreadOnly, limit)
}

func (s *service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	err := s.repo.MarkRead(ctx, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("notification", err)
	}
	return err
}

func (s *service) MarkReadBatch(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, apperrors.BadRequest("ids must not be empty", nil)
	}
	return s.repo.MarkReadBatch(ctx, userID, ids)
}
