// Package organizations implements the /org routes: create, get, update and
// delete of a tenant organization.
package organizations

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/org-management/org-service/internal/api/response"
	"github.com/org-management/org-service/internal/middleware"
	"github.com/org-management/org-service/internal/services"
	"github.com/org-management/org-service/internal/validation"
)

// CreateRequest is the body of POST /org/create
type CreateRequest struct {
	OrganizationName string `json:"organization_name" binding:"required,min=3,max=50,orgname" example:"acme_corp"`
	Email            string `json:"email" binding:"required,email" example:"admin@acme.io"`
	Password         string `json:"password" binding:"required,min=8,passwordbytes,strongpassword" example:"Sup3rSecret"`
}

// UpdateRequest is the body of PUT /org/update
type UpdateRequest struct {
	OrganizationName string  `json:"organization_name" binding:"required,min=3,max=50,orgname" example:"acme_inc"`
	Email            *string `json:"email,omitempty" binding:"omitempty,email" example:"owner@acme.io"`
	Password         *string `json:"password,omitempty" binding:"omitempty,min=8,passwordbytes" example:"An0therSecret"`
}

type nameQuery struct {
	OrganizationName string `form:"organization_name" binding:"required,min=3,max=50"`
}

type currentNameQuery struct {
	CurrentOrgName string `form:"current_org_name" binding:"required,min=3,max=50"`
}

// OrganizationData wraps an organization in success responses
type OrganizationData struct {
	Organization *services.OrganizationView `json:"organization"`
}

// Handlers serves the organization routes.
type Handlers struct {
	orgs  *services.OrganizationService
	debug bool
}

// NewHandlers creates the organization handlers. debug exposes internal
// error causes in 500 responses.
func NewHandlers(orgs *services.OrganizationService, debug bool) *Handlers {
	validation.Register()
	return &Handlers{orgs: orgs, debug: debug}
}

func lower(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(*s)
	return &v
}

// @Summary      Create organization
// @Description  Registers an organization with its admin and provisions the tenant collection.
// @Tags         Organizations
// @Accept       json
// @Produce      json
// @Param        body  body      CreateRequest  true  "Organization and admin credentials"
// @Success      201   {object}  response.Success{data=OrganizationData}
// @Failure      409   {object}  response.Error  "Organization or admin email already exists"
// @Failure      422   {object}  response.Error  "Validation error"
// @Failure      500   {object}  response.Error
// @Router       /org/create [post]
func (h *Handlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, validation.FieldErrors(err, validation.LocationBody))
			return
		}

		name, email := strings.ToLower(req.OrganizationName), strings.ToLower(req.Email)
		middleware.SetAuditSubject(c, name, email)

		view, err := h.orgs.Create(c.Request.Context(), services.CreateInput{
			Name:     name,
			Email:    email,
			Password: req.Password,
		})
		if err != nil {
			response.ServiceError(c, err, h.debug, http.StatusConflict)
			return
		}

		response.OK(c, http.StatusCreated,
			fmt.Sprintf("Organization '%s' created successfully", view.Name),
			OrganizationData{Organization: view})
	}
}

// @Summary      Get organization
// @Description  Returns an organization by name. Names are case-insensitive.
// @Tags         Organizations
// @Produce      json
// @Param        organization_name  query     string  true  "Organization name"  minlength(3)  maxlength(50)
// @Success      200                {object}  response.Success{data=OrganizationData}
// @Failure      404                {object}  response.Error
// @Failure      422                {object}  response.Error
// @Router       /org/get [get]
func (h *Handlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q nameQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			response.ValidationFailed(c, validation.FieldErrors(err, validation.LocationQuery))
			return
		}

		view, err := h.orgs.Get(c.Request.Context(), q.OrganizationName)
		if err != nil {
			response.ServiceError(c, err, h.debug, http.StatusConflict)
			return
		}

		response.OK(c, http.StatusOK, "Organization retrieved successfully", OrganizationData{Organization: view})
	}
}

// @Summary      Update organization
// @Description  Renames the organization (and its tenant collection) and optionally changes the admin email or password. Only the organization's own admin may update it.
// @Tags         Organizations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        current_org_name  query     string         true  "Current organization name"  minlength(3)  maxlength(50)
// @Param        body              body      UpdateRequest  true  "New values"
// @Success      200               {object}  response.Success{data=OrganizationData}
// @Failure      401               {object}  response.Error
// @Failure      403               {object}  response.Error
// @Failure      404               {object}  response.Error
// @Failure      409               {object}  response.Error
// @Failure      422               {object}  response.Error
// @Failure      500               {object}  response.Error
// @Router       /org/update [put]
func (h *Handlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q currentNameQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			response.ValidationFailed(c, validation.FieldErrors(err, validation.LocationQuery))
			return
		}
		var req UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, validation.FieldErrors(err, validation.LocationBody))
			return
		}
		principal, ok := middleware.GetPrincipal(c)
		if !ok {
			response.Abort(c, http.StatusForbidden, "Not authenticated", nil)
			return
		}

		middleware.SetAuditSubject(c, strings.ToLower(q.CurrentOrgName), "")
		middleware.AddAuditMetadata(c, "new_name", strings.ToLower(req.OrganizationName))
		middleware.AddAuditMetadata(c, "email_changed", req.Email != nil)
		middleware.AddAuditMetadata(c, "password_changed", req.Password != nil)

		view, err := h.orgs.Update(c.Request.Context(), q.CurrentOrgName, services.UpdateInput{
			Name:     strings.ToLower(req.OrganizationName),
			Email:    lower(req.Email),
			Password: req.Password,
		}, principal)
		if err != nil {
			response.ServiceError(c, err, h.debug, http.StatusConflict)
			return
		}

		response.OK(c, http.StatusOK, "Organization updated successfully", OrganizationData{Organization: view})
	}
}

// @Summary      Delete organization
// @Description  Drops the tenant collection, then removes the organization's admins and registry entry. Only the organization's own admin may delete it.
// @Tags         Organizations
// @Produce      json
// @Security     BearerAuth
// @Param        organization_name  query     string  true  "Organization name"  minlength(3)  maxlength(50)
// @Success      200                {object}  response.Success
// @Failure      400                {object}  response.Error
// @Failure      401                {object}  response.Error
// @Failure      403                {object}  response.Error
// @Failure      404                {object}  response.Error
// @Failure      422                {object}  response.Error
// @Failure      500                {object}  response.Error
// @Router       /org/delete [delete]
func (h *Handlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q nameQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			response.ValidationFailed(c, validation.FieldErrors(err, validation.LocationQuery))
			return
		}
		principal, ok := middleware.GetPrincipal(c)
		if !ok {
			response.Abort(c, http.StatusForbidden, "Not authenticated", nil)
			return
		}

		name := strings.ToLower(q.OrganizationName)
		middleware.SetAuditSubject(c, name, "")
		if err := h.orgs.Delete(c.Request.Context(), name, principal); err != nil {
			response.ServiceError(c, err, h.debug, http.StatusBadRequest)
			return
		}

		response.OK(c, http.StatusOK, fmt.Sprintf("Organization '%s' deleted successfully", name), nil)
	}
}
