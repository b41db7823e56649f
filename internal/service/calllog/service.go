package calllog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/staffdeck/realtime-api/internal/model"
	"github.com/staffdeck/realtime-api/internal/repository"
	apperrors "github.com/staffdeck/realtime-api/pkg/errors"
	"github.com/staffdeck/realtime-api/pkg/metrics"
	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// RecordRequest is the terminal call record submitted by a client after
// its session reaches a final state.
type RecordRequest struct {
	SessionID       uuid.UUID         `json:"session_id" binding:"required"`
	CallerID        uuid.UUID         `json:"caller_id" binding:"required"`
	ReceiverID      uuid.UUID         `json:"receiver_id" binding:"required"`
	Kind            realtime.CallKind `json:"kind" binding:"required"`
	Status          model.CallStatus  `json:"status" binding:"required"`
	StartedAt       time.Time         `json:"started_at" binding:"required"`
	EndedAt         *time.Time        `json:"ended_at"`
	DurationSeconds *int64            `json:"duration_seconds"`
}

type Service interface {
	// Record stores one terminal call record. Re-submitting the same
	// session id is a no-op reported as duplicate=false.
	Record(ctx context.Context, req *RecordRequest) (*model.CallLog, bool, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]*model.CallLog, error)
}

type service struct {
	repo   repository.CallLogRepository
	logger zerolog.Logger
}

func NewService(repo repository.CallLogRepository, logger *zerolog.Logger) Service {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "calllog_service").Logger()
	}
	return &service{repo: repo, logger: log}
}

func (s *service) Record(ctx context.Context, req *RecordRequest) (*model.CallLog, bool, error) {
	if !model.ValidCallStatus(req.Status) {
		return nil, false, apperrors.BadRequest(fmt.Sprintf("unknown call status %q", req.Status), nil)
	}
	if req.Kind != realtime.CallAudio && req.Kind != realtime.CallVideo {
		return nil, false, apperrors.BadRequest(fmt.Sprintf("unknown call kind %q", req.Kind), nil)
	}
	if req.Status == model.CallStatusEnded && (req.EndedAt == nil || req.DurationSeconds == nil) {
		return nil, false, apperrors.BadRequest("ended calls require ended_at and duration_seconds", nil)
	}

	log := &model.CallLog{
		SessionID:       req.SessionID,
		CallerID:        req.CallerID,
		ReceiverID:      req.ReceiverID,
		Kind:            req.Kind,
		Status:          req.Status,
		StartedAt:       req.StartedAt,
		EndedAt:         req.EndedAt,
		DurationSeconds: req.DurationSeconds,
		CreatedAt:       time.Now().UTC(),
	}

	inserted, err := s.repo.Insert(ctx, log)
	if err != nil {
		metrics.CallLogWrites.WithLabelValues("error").Inc()
		return nil, false, err
	}
	if !inserted {
		metrics.CallLogWrites.WithLabelValues("duplicate").Inc()
		s.logger.Debug().Str("session_id", req.SessionID.String()).Msg("call log already recorded")
		return log, false, nil
	}
	metrics.CallLogWrites.WithLabelValues("inserted").Inc()
	return log, true, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, limit int) ([]*model.CallLog, error) {
	return s.repo.ListForUser(ctx, userID, limit)
}
