package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-service/internal/usecase/user"
	pkgerrors "user-service/pkg/errors"
	"user-service/pkg/logger"
)

// UserHandler handles HTTP requests for user operations
type UserHandler struct {
	uc  user.Usecase
	log *zap.Logger
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(uc user.Usecase, log *zap.Logger) *UserHandler {
	return &UserHandler{
		uc:  uc,
		log: log,
	}
}

// UserRequest is the request body for create and update. Name is a pointer
// so that a missing field can be told apart from an empty string.
type UserRequest struct {
	Name *string `json:"name" binding:"required"`
}

// UserResponse represents the HTTP response for user data
type UserResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CreateUser handles POST /user/
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req UserRequest
	if !h.bindBody(c, &req) {
		return
	}

	resp, err := h.uc.CreateUser(c.Request.Context(), user.CreateUserRequest{Name: *req.Name})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(resp))
}

// GetUser handles GET /user/:id. An unknown id yields a JSON null body.
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	resp, err := h.uc.GetUser(c.Request.Context(), user.GetUserRequest{ID: id})
	if err != nil {
		h.handleError(c, err)
		return
	}
	if resp == nil {
		c.JSON(http.StatusOK, nil)
		return
	}

	c.JSON(http.StatusOK, toResponse(resp))
}

// ListUsers handles GET /user/users_all/
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.uc.ListUsers(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	out := make([]UserResponse, len(users))
	for i := range users {
		out[i] = toResponse(&users[i])
	}

	c.JSON(http.StatusOK, out)
}

// UpdateUser handles PUT /user/:id
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UserRequest
	if !h.bindBody(c, &req) {
		return
	}

	resp, err := h.uc.UpdateUser(c.Request.Context(), user.UpdateUserRequest{ID: id, Name: *req.Name})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(resp))
}

// DeleteUser handles DELETE /user/:id and responds with the deleted row count.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	resp, err := h.uc.DeleteUser(c.Request.Context(), user.DeleteUserRequest{ID: id})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp.Deleted)
}

func (h *UserHandler) parseID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		logger.WithContext(c.Request.Context(), h.log).Warn("invalid user id", zap.String("id", idStr), zap.Error(err))
		h.handleError(c, pkgerrors.NewValidationError("id", "user id must be a valid integer"))
		return 0, false
	}
	return id, true
}

func (h *UserHandler) bindBody(c *gin.Context, req *UserRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logger.WithContext(c.Request.Context(), h.log).Warn("invalid user request body", zap.Error(err))
		h.handleError(c, pkgerrors.NewValidationError("name", "body must be a JSON object with a string name"))
		return false
	}
	return true
}

// handleError converts usecase errors to HTTP responses. Details of
// backend and internal failures are logged, not returned.
func (h *UserHandler) handleError(c *gin.Context, err error) {
	err = pkgerrors.AsInternal(err)
	status := pkgerrors.HTTPStatus(err)
	body := ErrorResponse{Error: pkgerrors.Kind(err), Message: err.Error()}

	switch {
	case pkgerrors.IsStorage(err):
		body.Message = "storage backend unavailable"
	case status >= http.StatusInternalServerError:
		body.Message = "An internal error occurred"
	}

	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context(), h.log).Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
	}

	_ = c.Error(err)
	c.JSON(status, body)
}

func toResponse(u *user.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name}
}
