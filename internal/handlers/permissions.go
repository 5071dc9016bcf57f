package handlers

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/services"
	appErrors "github.com/charlesng35/youthtracker/pkg/errors"
	"github.com/charlesng35/youthtracker/pkg/response"
	appValidator "github.com/charlesng35/youthtracker/pkg/validator"
)

// PermissionHandler serves the guardian signing flow and the admin
// permission workflow.
type PermissionHandler struct {
	permissions *services.PermissionService
	activityURL string
}

// NewPermissionHandler constructs a PermissionHandler. activityURL is the
// public activity page base used in message previews.
func NewPermissionHandler(permissions *services.PermissionService, activityURL string) *PermissionHandler {
	return &PermissionHandler{
		permissions: permissions,
		activityURL: strings.TrimRight(strings.TrimSpace(activityURL), "/"),
	}
}

type submitPermissionRequest struct {
	Token     string `json:"token" validate:"required,notblank"`
	SignedBy  string `json:"signed_by" validate:"omitempty,max=255"`
	Signature string `json:"signature" validate:"omitempty,signature_png"`
	Medical   string `json:"medical" validate:"omitempty,max=4000"`
}

type issueTokenRequest struct {
	SubjectID  string `json:"subject_id" validate:"required,notblank"`
	ActivityID string `json:"activity_id" validate:"required,notblank"`
	TTLHours   int    `json:"ttl_hours" validate:"omitempty,gte=1,max=2160"`
}

type grantRequest struct {
	SubjectID  string `json:"subject_id" validate:"required,notblank"`
	ActivityID string `json:"activity_id" validate:"required,notblank"`
}

// GET /api/verify-token?token=
func (h *PermissionHandler) VerifyToken(c *gin.Context) {
	view, err := h.permissions.VerifyToken(requestContext(c), c.Query("token"))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// POST /api/activity-permission
func (h *PermissionHandler) Submit(c *gin.Context) {
	var req submitPermissionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	var signature []byte
	if strings.TrimSpace(req.Signature) != "" {
		decoded, err := appValidator.DecodeSignaturePNG(req.Signature)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("signature must be a base64 encoded PNG image"))
			return
		}
		signature = decoded
	}

	result, err := h.permissions.Submit(requestContext(c), services.SubmitPermissionInput{
		Token:        req.Token,
		SignedBy:     req.SignedBy,
		SignaturePNG: signature,
		Medical:      req.Medical,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// POST /api/permission-tokens
func (h *PermissionHandler) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	issued, err := h.permissions.IssueToken(requestContext(c), req.SubjectID, req.ActivityID, time.Duration(req.TTLHours)*time.Hour, actorFromContext(c))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, issued)
}

// GET /api/request-permissions?activity_id=
func (h *PermissionHandler) RequestPermissions(c *gin.Context) {
	activityID := strings.TrimSpace(c.Query("activity_id"))
	if activityID == "" {
		response.Error(c, appErrors.NewBadRequest("activity_id is required"))
		return
	}

	report, err := h.permissions.RequestPermissions(requestContext(c), activityID, actorFromContext(c))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// GET /api/resend-permission?id=
func (h *PermissionHandler) Resend(c *gin.Context) {
	recordID := strings.TrimSpace(c.Query("id"))
	if recordID == "" {
		response.Error(c, appErrors.NewBadRequest("id is required"))
		return
	}

	report, err := h.permissions.Resend(requestContext(c), recordID, actorFromContext(c))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// POST /api/activity-permissions/grant
func (h *PermissionHandler) Grant(c *gin.Context) {
	var req grantRequest
	if !bindAndValidate(c, &req) {
		return
	}

	actor := actorFromContext(c)
	record, err := h.permissions.Grant(requestContext(c), services.GrantInput{
		SubjectID:     req.SubjectID,
		ActivityID:    req.ActivityID,
		AdminID:       actor.ID,
		AdminUsername: actor.Username,
		IPAddress:     actor.IPAddress,
		UserAgent:     actor.UserAgent,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// POST /api/activities/:id/enroll
func (h *PermissionHandler) Enroll(c *gin.Context) {
	report, err := h.permissions.EnrollParticipants(requestContext(c), c.Param("id"), actorFromContext(c))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// GET /api/activities/:id/permissions
func (h *PermissionHandler) ListForActivity(c *gin.Context) {
	statuses, err := h.permissions.ListPermissions(requestContext(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, statuses)
}

// GET /api/permission-records/:id/document
func (h *PermissionHandler) DownloadDocument(c *gin.Context) {
	path, err := h.permissions.DocumentPath(requestContext(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// GET /api/permission-records/:id/documents
func (h *PermissionHandler) Documents(c *gin.Context) {
	docs, err := h.permissions.Documents(requestContext(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, docs)
}

// GET /api/permission-records/:id/document/verify
func (h *PermissionHandler) VerifyDocument(c *gin.Context) {
	result, err := h.permissions.VerifyDocument(requestContext(c), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/email-activity-permission/:id?subject_id=
func (h *PermissionHandler) EmailPreview(c *gin.Context) {
	id := c.Param("id")
	msg, err := h.permissions.PreviewRequest(requestContext(c), id, c.Query("subject_id"), h.link(id))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"channel": "email",
		"subject": msg.Subject,
		"text":    msg.Text,
		"html":    msg.HTML,
	})
}

// GET /api/sms-activity-permission/:id?subject_id=
func (h *PermissionHandler) SMSPreview(c *gin.Context) {
	id := c.Param("id")
	msg, err := h.permissions.PreviewRequest(requestContext(c), id, c.Query("subject_id"), h.link(id))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"channel": "sms",
		"text":    msg.SMS,
	})
}

func (h *PermissionHandler) link(id string) string {
	if h.activityURL == "" {
		return ""
	}
	return h.activityURL + "/" + id
}
