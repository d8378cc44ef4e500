package learn

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lessonforge/lessonforge/internal/domain"
	"github.com/lessonforge/lessonforge/internal/service"
)

// Handler handles learn and follow-up chat API requests
type Handler struct {
	learnService *service.LearnService
	chatService  *service.ChatService
}

// NewHandler creates a new learn handler
func NewHandler(learnService *service.LearnService, chatService *service.ChatService) *Handler {
	return &Handler{learnService: learnService, chatService: chatService}
}

// RegisterRoutes registers learn routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.StartLearning)
	r.GET("/:session_id", h.GetSession)
	r.DELETE("/:session_id", h.Abandon)
	r.POST("/:session_id/supplement", h.SubmitSupplement)
	r.POST("/:session_id/chat/:section/:qa", h.SendFollowUp)
	r.GET("/:session_id/chat/:section/:qa", h.GetHistory)
}

// StartLearning synthesizes a new lesson from heterogeneous sources
func (h *Handler) StartLearning(c *gin.Context) {
	var req domain.StartLearningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.learnService.StartLearning(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetSession returns the current session snapshot
func (h *Handler) GetSession(c *gin.Context) {
	view, err := h.learnService.GetSession(c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Abandon discards a session
func (h *Handler) Abandon(c *gin.Context) {
	if err := h.learnService.Abandon(c.Param("session_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitSupplement resubmits a pending session with supplied content
func (h *Handler) SubmitSupplement(c *gin.Context) {
	var req domain.SupplementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.learnService.SubmitSupplemental(c.Request.Context(), c.Param("session_id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// SendFollowUp sends one follow-up chat message for a QA pair
func (h *Handler) SendFollowUp(c *gin.Context) {
	sectionIdx, qaIdx, ok := conversationKey(c)
	if !ok {
		return
	}

	var req domain.FollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.chatService.SendFollowUp(c.Request.Context(), c.Param("session_id"), sectionIdx, qaIdx, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetHistory returns the stored conversation for a QA pair
func (h *Handler) GetHistory(c *gin.Context) {
	sectionIdx, qaIdx, ok := conversationKey(c)
	if !ok {
		return
	}

	turns, err := h.chatService.History(c.Param("session_id"), sectionIdx, qaIdx)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"turns": turns})
}

func conversationKey(c *gin.Context) (sectionIdx, qaIdx int, ok bool) {
	sectionIdx, err := strconv.Atoi(c.Param("section"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid section index"})
		return 0, 0, false
	}
	qaIdx, err = strconv.Atoi(c.Param("qa"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid qa index"})
		return 0, 0, false
	}
	return sectionIdx, qaIdx, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNoSourcesProvided),
		errors.Is(err, domain.ErrNothingToSubmit):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRequestInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnparsableResponse),
		errors.Is(err, domain.ErrMalformedJSON),
		errors.Is(err, domain.ErrUnexpectedShape),
		errors.Is(err, domain.ErrSafetyBlocked):
		// Parse and safety failures are user-visible; the client keeps its
		// inputs for retry
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
