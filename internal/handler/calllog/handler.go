package calllog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/staffdeck/realtime-api/internal/handler"
	"github.com/staffdeck/realtime-api/internal/middleware"
	"github.com/staffdeck/realtime-api/internal/service/calllog"
	apperrors "github.com/staffdeck/realtime-api/pkg/errors"
)

type Handler struct {
	svc calllog.Service
}

func NewHandler(svc calllog.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/calls", h.Record)
	r.GET("/calls", h.History)
}

// Record stores a terminal call record. Clients may retry freely; replays
// of a session id return 200 instead of 201.
func (h *Handler) Record(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	var req calllog.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}
	if req.CallerID != userID && req.ReceiverID != userID {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("not a participant of this call"))
		return
	}

	record, inserted, err := h.svc.Record(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	c.JSON(status, handler.NewSuccessResponse(record))
}

func (h *Handler) History(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid limit"))
			return
		}
		limit = parsed
	}

	logs, err := h.svc.History(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrBadRequest {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(appErr.Message))
		return
	}
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("internal server error"))
}
