// Package httpapi exposes the lifecycle services over HTTP with gin.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/internal/services"
)

type Handlers struct {
	versions  services.VersionService
	sessions  services.SessionService
	catalog   services.CatalogService
	integrity services.IntegrityService
	validator services.StructureValidator
	log       *logger.Logger
}

type Services struct {
	Versions  services.VersionService
	Sessions  services.SessionService
	Catalog   services.CatalogService
	Integrity services.IntegrityService
	Validator services.StructureValidator
}

func NewHandlers(svc Services, log *logger.Logger) *Handlers {
	return &Handlers{
		versions:  svc.Versions,
		sessions:  svc.Sessions,
		catalog:   svc.Catalog,
		integrity: svc.Integrity,
		validator: svc.Validator,
		log:       log,
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		badRequest(c, fmt.Sprintf("%s must be a positive integer", name))
		return 0, false
	}
	return id, true
}

func structureOf(c *gin.Context, h *Handlers, raw json.RawMessage) (models.Structure, bool) {
	structure, err := services.ParseStructure(raw)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return structure, true
}

type createSurveyRequest struct {
	Type models.SurveyType `json:"type" binding:"required"`
	Name string            `json:"name" binding:"required"`
}

// CreateSurvey handles POST /surveys.
func (h *Handlers) CreateSurvey(c *gin.Context) {
	var req createSurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	survey, err := h.catalog.CreateSurvey(c.Request.Context(), req.Type, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, survey)
}

func (h *Handlers) ListSurveys(c *gin.Context) {
	surveys, err := h.catalog.ListSurveys(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, surveys)
}

func (h *Handlers) GetSurvey(c *gin.Context) {
	surveyID, ok := pathID(c, "surveyId")
	if !ok {
		return
	}

	survey, err := h.catalog.GetSurvey(c.Request.Context(), surveyID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, survey)
}

func (h *Handlers) DeleteSurvey(c *gin.Context) {
	surveyID, ok := pathID(c, "surveyId")
	if !ok {
		return
	}

	if err := h.catalog.DeleteSurvey(c.Request.Context(), surveyID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type registerAdminRequest struct {
	TelegramUsername string `json:"telegramUsername" binding:"required"`
}

func (h *Handlers) RegisterAdmin(c *gin.Context) {
	var req registerAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	admin, err := h.catalog.RegisterAdmin(c.Request.Context(), req.TelegramUsername)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, admin)
}

type createDraftRequest struct {
	Name      string            `json:"name"`
	Type      models.SurveyType `json:"type" binding:"required"`
	Structure json.RawMessage   `json:"structure"`
	AuthorID  int64             `json:"authorId" binding:"required,gt=0"`
}

// CreateDraftVersion handles POST /surveys/:surveyId/versions.
func (h *Handlers) CreateDraftVersion(c *gin.Context) {
	surveyID, ok := pathID(c, "surveyId")
	if !ok {
		return
	}

	var req createDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	structure, ok := structureOf(c, h, req.Structure)
	if !ok {
		return
	}

	version, err := h.versions.CreateDraftVersion(c.Request.Context(), surveyID, req.Name, req.Type, structure, req.AuthorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

type pageQuery struct {
	Page  int `form:"page" binding:"omitempty,gte=1"`
	Limit int `form:"limit" binding:"omitempty,gte=1,lte=100"`
}

// VersionHistory handles GET /surveys/:surveyId/versions. Without a page
// parameter the whole history is returned.
func (h *Handlers) VersionHistory(c *gin.Context) {
	surveyID, ok := pathID(c, "surveyId")
	if !ok {
		return
	}

	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "page and limit must be positive, limit at most 100")
		return
	}

	if q.Page == 0 {
		history, err := h.versions.GetVersionHistory(c.Request.Context(), surveyID)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
		return
	}

	page, err := h.versions.GetVersionHistoryPage(c.Request.Context(), surveyID, q.Page, q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// LatestVersion handles GET /surveys/:surveyId/versions/latest?status=.
func (h *Handlers) LatestVersion(c *gin.Context) {
	surveyID, ok := pathID(c, "surveyId")
	if !ok {
		return
	}

	var status *models.VersionStatus
	if raw := c.Query("status"); raw != "" {
		s := models.VersionStatus(raw)
		if !s.Valid() {
			badRequest(c, fmt.Sprintf("Unknown status %q", raw))
			return
		}
		status = &s
	}

	version, err := h.versions.GetLatestVersion(c.Request.Context(), surveyID, status)
	if err != nil {
		h.fail(c, err)
		return
	}
	if version == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("Survey %d has no matching version", surveyID),
			Code:  "NotFound",
		})
		return
	}
	c.JSON(http.StatusOK, version)
}

func (h *Handlers) GetVersion(c *gin.Context) {
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}

	version, err := h.versions.GetVersion(c.Request.Context(), versionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

type updateDraftRequest struct {
	Name      string          `json:"name"`
	Structure json.RawMessage `json:"structure"`
}

// UpdateDraft handles PUT /versions/:versionId.
func (h *Handlers) UpdateDraft(c *gin.Context) {
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}

	var req updateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	structure, ok := structureOf(c, h, req.Structure)
	if !ok {
		return
	}

	version, err := h.versions.UpdateDraftStructure(c.Request.Context(), versionID, req.Name, structure)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

type cloneRequest struct {
	AuthorID int64 `json:"authorId" binding:"required,gt=0"`
}

// CloneVersion handles POST /versions/:versionId/clone.
func (h *Handlers) CloneVersion(c *gin.Context) {
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}

	var req cloneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	version, err := h.versions.CreateNewVersionFromExisting(c.Request.Context(), versionID, req.AuthorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

func (h *Handlers) PublishVersion(c *gin.Context) {
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}

	version, err := h.versions.PublishVersion(c.Request.Context(), versionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (h *Handlers) UnpublishVersion(c *gin.Context) {
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}

	version, err := h.versions.UnpublishVersion(c.Request.Context(), versionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

type startSessionRequest struct {
	UserID int64 `json:"userId" binding:"required"`
}

// StartSession handles POST /surveys/:surveyId/sessions.
func (h *Handlers) StartSession(c *gin.Context) {
	surveyID, ok := pathID(c, "surveyId")
	if !ok {
		return
	}

	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	session, err := h.sessions.StartSession(c.Request.Context(), surveyID, req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// SessionVersion handles GET /sessions/:sessionId/version.
func (h *Handlers) SessionVersion(c *gin.Context) {
	version, err := h.sessions.ResolveSessionVersion(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

type validateRequest struct {
	Structure json.RawMessage `json:"structure"`
}

type validateResponse struct {
	Valid      bool                 `json:"valid"`
	Violations []services.Violation `json:"violations"`
}

// ValidateStructure handles POST /structures/validate and reports every
// violation instead of the first one.
func (h *Handlers) ValidateStructure(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	structure, ok := structureOf(c, h, req.Structure)
	if !ok {
		return
	}

	violations := h.validator.Violations(structure)
	if violations == nil {
		violations = []services.Violation{}
	}
	c.JSON(http.StatusOK, validateResponse{Valid: len(violations) == 0, Violations: violations})
}

// Audit handles GET /audit.
func (h *Handlers) Audit(c *gin.Context) {
	report, err := h.integrity.Audit(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
