package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/services"
	"github.com/charlesng35/youthtracker/pkg/response"
)

// SubjectHandler serves the participant registry under /api/users.
type SubjectHandler struct {
	svc *services.SubjectService
}

// NewSubjectHandler constructs a SubjectHandler.
func NewSubjectHandler(svc *services.SubjectService) *SubjectHandler {
	return &SubjectHandler{svc: svc}
}

type createSubjectRequest struct {
	FirstName     string   `json:"first_name" validate:"required,notblank,max=128"`
	LastName      string   `json:"last_name" validate:"required,notblank,max=128"`
	Email         string   `json:"email" validate:"omitempty,email"`
	Cell          string   `json:"cell" validate:"omitempty,max=32"`
	GuardianName  string   `json:"guardian_name" validate:"omitempty,max=255"`
	GuardianEmail string   `json:"guardian_email" validate:"omitempty,email"`
	GuardianCell  string   `json:"guardian_cell" validate:"omitempty,max=32"`
	Groups        []string `json:"groups" validate:"omitempty,dive,max=64"`
	IsActive      *bool    `json:"is_active"`
}

type updateSubjectRequest struct {
	FirstName     *string   `json:"first_name" validate:"omitempty,notblank,max=128"`
	LastName      *string   `json:"last_name" validate:"omitempty,notblank,max=128"`
	Email         *string   `json:"email" validate:"omitempty"`
	Cell          *string   `json:"cell" validate:"omitempty,max=32"`
	GuardianName  *string   `json:"guardian_name" validate:"omitempty,max=255"`
	GuardianEmail *string   `json:"guardian_email" validate:"omitempty"`
	GuardianCell  *string   `json:"guardian_cell" validate:"omitempty,max=32"`
	Groups        *[]string `json:"groups"`
	IsActive      *bool     `json:"is_active"`
}

// GET /api/users
func (h *SubjectHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 0)

	filters := services.SubjectFilters{
		Group: c.Query("group"),
		Query: c.Query("q"),
	}
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filters.IsActive = &active
		}
	}

	subjects, total, err := h.svc.List(requestContext(c), services.ListSubjectsOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  filters,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	if perPage <= 0 {
		response.Success(c, http.StatusOK, subjects)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, subjects, &response.Meta{Page: page, PerPage: perPage, Total: int(total)})
}

// GET /api/users/:id
func (h *SubjectHandler) Get(c *gin.Context) {
	subject, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, subject)
}

// POST /api/users
func (h *SubjectHandler) Create(c *gin.Context) {
	var req createSubjectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	subject, err := h.svc.Create(requestContext(c), services.CreateSubjectInput{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Cell:          req.Cell,
		GuardianName:  req.GuardianName,
		GuardianEmail: req.GuardianEmail,
		GuardianCell:  req.GuardianCell,
		Groups:        req.Groups,
		IsActive:      req.IsActive,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, subject)
}

// PUT /api/users/:id
func (h *SubjectHandler) Update(c *gin.Context) {
	var req updateSubjectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	subject, err := h.svc.Update(requestContext(c), c.Param("id"), services.UpdateSubjectInput{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Cell:          req.Cell,
		GuardianName:  req.GuardianName,
		GuardianEmail: req.GuardianEmail,
		GuardianCell:  req.GuardianCell,
		Groups:        req.Groups,
		IsActive:      req.IsActive,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, subject)
}

// DELETE /api/users/:id?cascade=true
func (h *SubjectHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(requestContext(c), id, parseBoolQuery(c, "cascade"), actorFromContext(c)); err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true, "id": id})
}

// GET /api/group-membership/:group
func (h *SubjectHandler) GroupMembership(c *gin.Context) {
	subjects, err := h.svc.GroupMembership(requestContext(c), c.Param("group"))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, subjects)
}

// GET /api/groups
func (h *SubjectHandler) Groups(c *gin.Context) {
	groups, err := h.svc.Groups(requestContext(c))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, groups)
}
