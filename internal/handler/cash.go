package handler

import (
	"net/http"
	"strconv"

	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/apierror"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/dto"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/middleware"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CashHandler struct{ svc service.CashService }

func NewCashHandler(svc service.CashService) *CashHandler { return &CashHandler{svc: svc} }

// identity extracts the authenticated (clinicID, userID) pair from the JWT
// claims set by the auth middleware.
func identity(c *gin.Context) (clinicID, userID uuid.UUID, ok bool) {
	claims := middleware.GetClaims(c)
	clinicID, err1 := uuid.Parse(claims.ClinicID)
	userID, err2 := uuid.Parse(claims.UserID)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusUnauthorized, apierror.New("Invalid identity claims"))
		return uuid.Nil, uuid.Nil, false
	}
	return clinicID, userID, true
}

func sessionIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid session id"))
		return uuid.Nil, false
	}
	return id, true
}

// OpenSession godoc
// @Summary Opens a cash session for a business date
// @Tags cash
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenSessionRequest true "Opening data"
// @Success 201 {object} dto.SessionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash/sessions [post]
func (h *CashHandler) OpenSession(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	clinicID, userID, ok := identity(c)
	if !ok {
		return
	}

	resp, err := h.svc.OpenSession(c.Request.Context(), clinicID, userID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// AppendOperation godoc
// @Summary Appends a monetary operation to an open session
// @Tags cash
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session id"
// @Param body body dto.AppendOperationRequest true "Operation data"
// @Success 201 {object} dto.OperationResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash/sessions/{id}/operations [post]
func (h *CashHandler) AppendOperation(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req dto.AppendOperationRequest
	if !bindAndValidate(c, &req) {
		return
	}
	clinicID, userID, ok := identity(c)
	if !ok {
		return
	}

	resp, err := h.svc.AppendOperation(c.Request.Context(), clinicID, userID, sessionID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// CloseSession godoc
// @Summary Closes a session, reconciling counted vs expected cash
// @Tags cash
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session id"
// @Param body body dto.CloseSessionRequest true "Counted closing amount"
// @Success 200 {object} dto.SessionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash/sessions/{id}/close [post]
func (h *CashHandler) CloseSession(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req dto.CloseSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	clinicID, userID, ok := identity(c)
	if !ok {
		return
	}

	resp, err := h.svc.CloseSession(c.Request.Context(), clinicID, userID, sessionID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteSession godoc
// @Summary Deletes a closed session and all its operations
// @Tags cash
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session id"
// @Success 204
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash/sessions/{id} [delete]
func (h *CashHandler) DeleteSession(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	clinicID, userID, ok := identity(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteSession(c.Request.Context(), clinicID, userID, sessionID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetSession godoc
// @Summary Returns a session snapshot with its full ledger
// @Tags cash
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session id"
// @Success 200 {object} dto.SessionDetailResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/cash/sessions/{id} [get]
func (h *CashHandler) GetSession(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	clinicID, _, ok := identity(c)
	if !ok {
		return
	}

	resp, err := h.svc.GetSessionDetail(c.Request.Context(), clinicID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListOperations godoc
// @Summary Lists a session's operations, newest first
// @Tags cash
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session id"
// @Success 200 {object} map[string]interface{}
// @Router /v1/cash/sessions/{id}/operations [get]
func (h *CashHandler) ListOperations(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	clinicID, _, ok := identity(c)
	if !ok {
		return
	}
	page, limit := pagination(c)

	ops, total, err := h.svc.ListOperations(c.Request.Context(), clinicID, sessionID, page, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ops, "total": total, "page": page, "limit": limit})
}

// GetOpenSession godoc
// @Summary Returns the open session for a business date, if any
// @Tags cash
// @Produce json
// @Security BearerAuth
// @Param business_date query string true "Business date (YYYY-MM-DD)"
// @Success 200 {object} dto.SessionResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/cash/open [get]
func (h *CashHandler) GetOpenSession(c *gin.Context) {
	clinicID, _, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetOpenSession(c.Request.Context(), clinicID, c.Query("business_date"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSessionByDate godoc
// @Summary Returns the most recent session for a business date, any status
// @Tags cash
// @Produce json
// @Security BearerAuth
// @Param business_date query string true "Business date (YYYY-MM-DD)"
// @Success 200 {object} dto.SessionResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/cash/by-date [get]
func (h *CashHandler) GetSessionByDate(c *gin.Context) {
	clinicID, _, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetSessionByDate(c.Request.Context(), clinicID, c.Query("business_date"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListHistory godoc
// @Summary Lists the clinic's sessions, newest business date first
// @Tags cash
// @Produce json
// @Security BearerAuth
// @Param from query string false "Only sessions on/after this date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Router /v1/cash/history [get]
func (h *CashHandler) ListHistory(c *gin.Context) {
	clinicID, _, ok := identity(c)
	if !ok {
		return
	}
	page, limit := pagination(c)

	sessions, total, err := h.svc.ListHistory(c.Request.Context(), clinicID, c.Query("from"), page, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sessions, "total": total, "page": page, "limit": limit})
}

func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
