package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/services"
	appErrors "github.com/charlesng35/youthtracker/pkg/errors"
	"github.com/charlesng35/youthtracker/pkg/response"
)

// InterestHandler records yearly activity selections.
type InterestHandler struct {
	svc *services.InterestService
}

// NewInterestHandler constructs an InterestHandler.
func NewInterestHandler(svc *services.InterestService) *InterestHandler {
	return &InterestHandler{svc: svc}
}

type interestRequest struct {
	SubjectID  string   `json:"subject_id" validate:"required,notblank"`
	Year       int      `json:"year" validate:"omitempty,gte=2000,max=2100"`
	Activities []string `json:"activities" validate:"omitempty,dive,max=255"`
}

// POST /api/user-interest
func (h *InterestHandler) Set(c *gin.Context) {
	var req interestRequest
	if !bindAndValidate(c, &req) {
		return
	}

	selections, err := h.svc.SetInterests(requestContext(c), req.SubjectID, req.Year, req.Activities)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, selections)
}

// GET /api/user-interest?subject_id=&year=
func (h *InterestHandler) List(c *gin.Context) {
	subjectID := strings.TrimSpace(c.Query("subject_id"))
	if subjectID == "" {
		response.Error(c, appErrors.NewBadRequest("subject_id is required"))
		return
	}

	selections, err := h.svc.List(requestContext(c), subjectID, parseIntQuery(c, "year", 0))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, selections)
}

// GET /api/user-interest/counts?group=&year=
func (h *InterestHandler) Counts(c *gin.Context) {
	counts, err := h.svc.CountSelectedActivities(requestContext(c), c.Query("group"), parseIntQuery(c, "year", 0))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, counts)
}
