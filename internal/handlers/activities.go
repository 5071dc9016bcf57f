package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/services"
	appErrors "github.com/charlesng35/youthtracker/pkg/errors"
	"github.com/charlesng35/youthtracker/pkg/response"
)

// ActivityHandler serves activities, budgets and their share artefacts.
type ActivityHandler struct {
	svc         *services.ActivityService
	activityURL string
}

// NewActivityHandler constructs an ActivityHandler. activityURL is the public
// page base that QR codes and calendar invites link to.
func NewActivityHandler(svc *services.ActivityService, activityURL string) *ActivityHandler {
	return &ActivityHandler{svc: svc, activityURL: strings.TrimRight(strings.TrimSpace(activityURL), "/")}
}

type budgetItemRequest struct {
	Item   string  `json:"item" validate:"required,notblank,max=255"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

type activityRequest struct {
	Name        string              `json:"name" validate:"required,notblank,max=255"`
	StartsAt    time.Time           `json:"starts_at" validate:"required"`
	EndsAt      time.Time           `json:"ends_at" validate:"required"`
	Description string              `json:"description"`
	Location    string              `json:"location" validate:"omitempty,max=255"`
	Groups      []string            `json:"groups" validate:"omitempty,dive,max=64"`
	Drivers     []string            `json:"drivers" validate:"omitempty,dive,max=128"`
	IsOvernight bool                `json:"is_overnight"`
	IsCoed      bool                `json:"is_coed"`
	TotalCost   *float64            `json:"total_cost" validate:"omitempty,gte=0"`
	Thoughts    string              `json:"thoughts"`
	BudgetItems []budgetItemRequest `json:"budget_items" validate:"omitempty,dive"`
}

func (r activityRequest) input() services.ActivityInput {
	items := make([]services.BudgetItemInput, 0, len(r.BudgetItems))
	for _, item := range r.BudgetItems {
		items = append(items, services.BudgetItemInput{Item: item.Item, Amount: item.Amount})
	}
	return services.ActivityInput{
		Name:        r.Name,
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
		Description: r.Description,
		Location:    r.Location,
		Groups:      r.Groups,
		Drivers:     r.Drivers,
		IsOvernight: r.IsOvernight,
		IsCoed:      r.IsCoed,
		TotalCost:   r.TotalCost,
		Thoughts:    r.Thoughts,
		BudgetItems: items,
	}
}

type reconcileRequest struct {
	ActualCost *float64 `json:"actual_cost" validate:"required,gte=0"`
	TotalCost  *float64 `json:"total_cost" validate:"omitempty,gte=0"`
	Thoughts   *string  `json:"thoughts"`
}

type approvalRequest struct {
	Level    string     `json:"level" validate:"required,oneof=bishop stake"`
	Approved *bool      `json:"approved" validate:"required"`
	Date     *time.Time `json:"date"`
}

// GET /api/activities
func (h *ActivityHandler) List(c *gin.Context) {
	filters := services.ActivityFilters{Group: c.Query("group")}

	for key, dst := range map[string]**time.Time{"from": &filters.From, "until": &filters.Until} {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		parsed, err := parseTimeParam(raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest(fmt.Sprintf("%s must be an RFC3339 timestamp or YYYY-MM-DD date", key)))
			return
		}
		*dst = &parsed
	}

	activities, err := h.svc.List(requestContext(c), filters)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, activities)
}

// GET /api/activities/:id
func (h *ActivityHandler) Get(c *gin.Context) {
	detail, err := h.svc.GetDetail(requestContext(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// POST /api/activities
func (h *ActivityHandler) Create(c *gin.Context) {
	var req activityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	activity, err := h.svc.Create(requestContext(c), req.input())
	if err != nil {
		renderError(c, err)
		return
	}
	detail, err := h.svc.GetDetail(requestContext(c), activity.ID)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, detail)
}

// PUT /api/activities/:id
func (h *ActivityHandler) Update(c *gin.Context) {
	var req activityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	activity, err := h.svc.Update(requestContext(c), c.Param("id"), req.input())
	if err != nil {
		renderError(c, err)
		return
	}
	detail, err := h.svc.GetDetail(requestContext(c), activity.ID)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// PUT /api/activities/:id/reconcile
func (h *ActivityHandler) Reconcile(c *gin.Context) {
	var req reconcileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	detail, err := h.svc.Reconcile(requestContext(c), c.Param("id"), services.ReconcileInput{
		ActualCost: *req.ActualCost,
		TotalCost:  req.TotalCost,
		Thoughts:   req.Thoughts,
	}, actorFromContext(c))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// PUT /api/activities/:id/approval
func (h *ActivityHandler) Approve(c *gin.Context) {
	var req approvalRequest
	if !bindAndValidate(c, &req) {
		return
	}

	detail, err := h.svc.Approve(requestContext(c), c.Param("id"), services.ApprovalInput{
		Level:    req.Level,
		Approved: *req.Approved,
		Date:     req.Date,
	}, actorFromContext(c))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// DELETE /api/activities/:id?cascade=true
func (h *ActivityHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(requestContext(c), id, parseBoolQuery(c, "cascade"), actorFromContext(c)); err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true, "id": id})
}

// GET /api/activities/:id/qrcode
func (h *ActivityHandler) QRCode(c *gin.Context) {
	id := c.Param("id")
	png, err := h.svc.QRCode(requestContext(c), id, h.link(id), parseIntQuery(c, "size", 0))
	if err != nil {
		renderError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

// GET /api/activities/:id/calendar
func (h *ActivityHandler) Calendar(c *gin.Context) {
	id := c.Param("id")
	invite, err := h.svc.Calendar(requestContext(c), id, h.link(id))
	if err != nil {
		renderError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "activity-"+id+".ics"))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(invite))
}

func (h *ActivityHandler) link(id string) string {
	if h.activityURL == "" {
		return ""
	}
	return h.activityURL + "/" + id
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
