package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUserRepo struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetByIDFunc(ctx, id)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour, time.Hour)
	session, _, err := tm.GenerateSessionToken(testUser())
	require.NoError(t, err)
	passwordSet, err := tm.GeneratePasswordSetToken(testUser())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"password-set token", "Bearer " + passwordSet, http.StatusUnauthorized},
		{"session token", "Bearer " + session, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *models.TokenClaims
			handler := AuthMiddleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetUserFromContext(r)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "user-123", seen.UserID)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *models.TokenClaims
		user   *models.User
		err    error
		want   int
	}{
		{"no claims", nil, nil, nil, http.StatusUnauthorized},
		{"unknown user", &models.TokenClaims{UserID: "gone"}, nil, models.ErrNotFound, http.StatusUnauthorized},
		{"store failure", &models.TokenClaims{UserID: "u1"}, nil, assert.AnError, http.StatusInternalServerError},
		{"plain user", &models.TokenClaims{UserID: "u1"}, &models.User{ID: "u1", Role: models.RoleUser}, nil, http.StatusForbidden},
		{"disabled admin", &models.TokenClaims{UserID: "u1"}, &models.User{ID: "u1", Role: models.RoleAdmin, Disabled: true}, nil, http.StatusForbidden},
		{"admin", &models.TokenClaims{UserID: "u1"}, &models.User{ID: "u1", Role: models.RoleAdmin}, nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockUserRepo{GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return tt.user, tt.err
			}}
			handler := RequireRole(repo, models.RoleAdmin)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			if tt.claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), UserContextKey, tt.claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
