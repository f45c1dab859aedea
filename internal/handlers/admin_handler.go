package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/riskauth/internal/auth"
	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/BradenHooton/riskauth/internal/services"
	pkghttp "github.com/BradenHooton/riskauth/pkg/http"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// AccountServiceInterface defines the account management contract.
type AccountServiceInterface interface {
	ProvisionUser(ctx context.Context, actorID, email, displayName, role string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	DeleteUser(ctx context.Context, actorID, id string) error
	RejectUser(ctx context.Context, actorID, id, reason string) error
}

// AnalyticsServiceInterface defines the risk analytics contract.
type AnalyticsServiceInterface interface {
	RiskDistribution(ctx context.Context) ([]models.RiskLevelCount, error)
	LoginTrend(ctx context.Context, days int) ([]models.DailyLoginCount, error)
}

// CreateUserRequest represents the request body for provisioning an account
type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	DisplayName string `json:"display_name" validate:"omitempty,max=100"`
	Role        string `json:"role" validate:"omitempty,oneof=user admin"`
}

// RejectUserRequest represents the request body for declining an account
type RejectUserRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// UserResponse is the admin view of an account. Hashes and token keys never leave the service.
type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Disabled    bool      `json:"disabled"`
	HasPassword bool      `json:"has_password"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		Disabled:    u.Disabled,
		HasPassword: u.PasswordHash != "",
		CreatedAt:   u.CreatedAt,
	}
}

// AdminHandler handles account management and analytics HTTP requests.
type AdminHandler struct {
	accounts  AccountServiceInterface
	analytics AnalyticsServiceInterface
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts AccountServiceInterface, analytics AnalyticsServiceInterface) *AdminHandler {
	return &AdminHandler{accounts: accounts, analytics: analytics}
}

// CreateUser handles POST /api/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.accounts.ProvisionUser(r.Context(), actorID(r), req.Email, req.DisplayName, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "A user with this email already exists")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid user")
		default:
			pkghttp.WriteInternalError(w, "Failed to create user")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

// ListUsers handles GET /api/admin/users?limit=N&offset=M
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultListLimit)
	if !ok || limit < 1 || limit > maxListLimit {
		pkghttp.WriteBadRequest(w, "limit must be between 1 and 100")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok || offset < 0 {
		pkghttp.WriteBadRequest(w, "offset must be a non-negative integer")
		return
	}

	users, err := h.accounts.ListUsers(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list users")
		return
	}

	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	pkghttp.WriteJSON(w, http.StatusOK, out)
}

// DeleteUser handles DELETE /api/admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	if err := h.accounts.DeleteUser(r.Context(), actorID(r), id); err != nil {
		switch {
		case errors.Is(err, models.ErrForbidden):
			pkghttp.WriteForbidden(w, "Administrators cannot delete their own account")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		default:
			pkghttp.WriteInternalError(w, "Failed to delete user")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RejectUser handles POST /api/admin/users/{id}/reject
func (h *AdminHandler) RejectUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	var req RejectUserRequest
	if r.ContentLength != 0 {
		if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid request body")
			return
		}
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.accounts.RejectUser(r.Context(), actorID(r), id, req.Reason); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "User has already activated the account")
		default:
			pkghttp.WriteInternalError(w, "Failed to reject user")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: "User rejected"})
}

// RiskDistribution handles GET /api/admin/analytics/risk-distribution
func (h *AdminHandler) RiskDistribution(w http.ResponseWriter, r *http.Request) {
	counts, err := h.analytics.RiskDistribution(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve risk distribution")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, counts)
}

// LoginTrend handles GET /api/admin/analytics/login-trend
// Accepts optional query param ?days=N (1–90, default 30).
func (h *AdminHandler) LoginTrend(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(r, "days", services.DefaultTrendDays)
	if !ok || days < 1 || days > services.MaxTrendDays {
		pkghttp.WriteBadRequest(w, "days must be between 1 and 90")
		return
	}

	trend, err := h.analytics.LoginTrend(r.Context(), days)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "days must be between 1 and 90")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to retrieve login trend")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, trend)
}

func actorID(r *http.Request) string {
	if claims := auth.GetUserFromContext(r); claims != nil {
		return claims.UserID
	}
	return ""
}

// queryInt returns def when the parameter is absent and false when it is not an integer.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
