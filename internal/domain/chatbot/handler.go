package chatbot

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/chatbot")
	g.POST("/respond", h.Respond)
	g.GET("/history/:patientId", h.History)
	g.DELETE("/clear/:patientId", h.Clear)
	g.GET("/stats/:patientId", h.Stats)
}

type respondRequest struct {
	Message   string       `json:"message"`
	Context   *RiskContext `json:"context"`
	PatientID string       `json:"patientId"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

func (h *Handler) Respond(c echo.Context) error {
	var req respondRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reply, err := h.svc.Respond(c.Request().Context(), req.PatientID, req.Message, req.Context)
	if errors.Is(err, ErrEmptyMessage) {
		return c.JSON(http.StatusBadRequest, replyResponse{Reply: EmptyMessageReply})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, replyResponse{Reply: ErrorReply})
	}
	return c.JSON(http.StatusOK, replyResponse{Reply: reply})
}

func (h *Handler) History(c echo.Context) error {
	history, err := h.svc.History(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch chat history")
	}
	return c.JSON(http.StatusOK, history)
}

func (h *Handler) Clear(c echo.Context) error {
	if err := h.svc.Clear(c.Request().Context(), c.Param("patientId")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear chat history")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Chat history cleared successfully",
	})
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context(), c.Param("patientId"))
	if errors.Is(err, ErrConversationNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "No conversation found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch conversation stats")
	}
	return c.JSON(http.StatusOK, st)
}
