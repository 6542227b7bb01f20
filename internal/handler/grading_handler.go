package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/Soule73/examena-sub000/internal/middleware"
	"github.com/Soule73/examena-sub000/internal/model"
	"github.com/Soule73/examena-sub000/internal/response"
	"github.com/Soule73/examena-sub000/internal/service"
	"github.com/Soule73/examena-sub000/internal/validator"
)

// GradingHandler handles teacher-side result listing and manual correction.
type GradingHandler struct {
	attemptService *service.AttemptService
}

// NewGradingHandler creates a new GradingHandler.
func NewGradingHandler(attemptService *service.AttemptService) *GradingHandler {
	return &GradingHandler{attemptService: attemptService}
}

// GetExamResults godoc
// GET /api/v1/teacher/exams/:exam_id/results
// Returns paginated per-student results for an exam the teacher authored.
func (h *GradingHandler) GetExamResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	results, total, err := h.attemptService.GetResults(c.Request.Context(), examID, claims.UserID, page, perPage)
	if err != nil {
		if errors.Is(err, service.ErrNotExamAuthor) {
			response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

// GetReview godoc
// GET /api/v1/teacher/assignments/:assignment_id/review
// Returns the grading view for one submitted attempt: questions, recorded
// answers, the current score map and any violations.
func (h *GradingHandler) GetReview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assignmentID, err := uuid.Parse(c.Param("assignment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	review, err := h.attemptService.GetReview(c.Request.Context(), assignmentID, claims.UserID)
	if err != nil {
		h.failReviewError(c, err)
		return
	}

	response.Success(c, http.StatusOK, review)
}

// SaveCorrections godoc
// PUT /api/v1/teacher/assignments/:assignment_id/scores
// Persists teacher-entered per-question scores. Scores above the question's
// points or below zero are clamped, never rejected. The assignment
// transitions to graded once the worker lands the write.
func (h *GradingHandler) SaveCorrections(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assignmentID, err := uuid.Parse(c.Param("assignment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveScoresRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	summary, err := h.attemptService.SaveCorrections(c.Request.Context(), assignmentID, claims.UserID, req.Scores)
	if err != nil {
		h.failReviewError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

func (h *GradingHandler) failReviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotExamAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
	case errors.Is(err, service.ErrNotReviewable):
		response.Fail(c, http.StatusConflict, response.ErrNotReadyForReview)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
