package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/riskauth/internal/auth"
	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/BradenHooton/riskauth/internal/services"
	pkghttp "github.com/BradenHooton/riskauth/pkg/http"
)

// newTestRequest creates an HTTP request with JSON body for testing
func newTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.10:51000"
	return req
}

// withAdminContext adds admin session claims to the request context
func withAdminContext(req *http.Request, userID string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  "admin@example.com",
		Role:   models.RoleAdmin,
		Type:   models.TokenTypeSession,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// withURLParam sets a chi route parameter on the request
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// assertJSONResponse checks that response has correct status and decodes JSON body
func assertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// assertErrorResponse checks that response is a valid error response and returns it
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// mockLoginService implements handlers.LoginServiceInterface for testing
type mockLoginService struct {
	LoginFunc           func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	VerifyChallengeFunc func(ctx context.Context, in services.VerifyInput) (*services.LoginResult, error)
	ResendChallengeFunc func(ctx context.Context, email string) error
	AssessFunc          func(ctx context.Context, email string, signal models.LoginSignal) (*services.RiskAssessmentResult, error)
}

func (m *mockLoginService) Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, in)
}

func (m *mockLoginService) VerifyChallenge(ctx context.Context, in services.VerifyInput) (*services.LoginResult, error) {
	if m.VerifyChallengeFunc == nil {
		return nil, &models.OTPRejectedError{Outcome: models.OTPOutcomeNoRecord}
	}
	return m.VerifyChallengeFunc(ctx, in)
}

func (m *mockLoginService) ResendChallenge(ctx context.Context, email string) error {
	if m.ResendChallengeFunc == nil {
		return nil
	}
	return m.ResendChallengeFunc(ctx, email)
}

func (m *mockLoginService) Assess(ctx context.Context, email string, signal models.LoginSignal) (*services.RiskAssessmentResult, error) {
	if m.AssessFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.AssessFunc(ctx, email, signal)
}

// mockPasswordService implements handlers.PasswordServiceInterface for testing
type mockPasswordService struct {
	SetPasswordFunc func(ctx context.Context, token, password string) error
}

func (m *mockPasswordService) SetPassword(ctx context.Context, token, password string) error {
	if m.SetPasswordFunc == nil {
		return nil
	}
	return m.SetPasswordFunc(ctx, token, password)
}

// mockAccountService implements handlers.AccountServiceInterface for testing
type mockAccountService struct {
	ProvisionUserFunc func(ctx context.Context, actorID, email, displayName, role string) (*models.User, error)
	ListUsersFunc     func(ctx context.Context, limit, offset int) ([]*models.User, error)
	DeleteUserFunc    func(ctx context.Context, actorID, id string) error
	RejectUserFunc    func(ctx context.Context, actorID, id, reason string) error
}

func (m *mockAccountService) ProvisionUser(ctx context.Context, actorID, email, displayName, role string) (*models.User, error) {
	if m.ProvisionUserFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.ProvisionUserFunc(ctx, actorID, email, displayName, role)
}

func (m *mockAccountService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListUsersFunc(ctx, limit, offset)
}

func (m *mockAccountService) DeleteUser(ctx context.Context, actorID, id string) error {
	if m.DeleteUserFunc == nil {
		return nil
	}
	return m.DeleteUserFunc(ctx, actorID, id)
}

func (m *mockAccountService) RejectUser(ctx context.Context, actorID, id, reason string) error {
	if m.RejectUserFunc == nil {
		return nil
	}
	return m.RejectUserFunc(ctx, actorID, id, reason)
}

// mockAnalyticsService implements handlers.AnalyticsServiceInterface for testing
type mockAnalyticsService struct {
	RiskDistributionFunc func(ctx context.Context) ([]models.RiskLevelCount, error)
	LoginTrendFunc       func(ctx context.Context, days int) ([]models.DailyLoginCount, error)
}

func (m *mockAnalyticsService) RiskDistribution(ctx context.Context) ([]models.RiskLevelCount, error) {
	if m.RiskDistributionFunc == nil {
		return []models.RiskLevelCount{}, nil
	}
	return m.RiskDistributionFunc(ctx)
}

func (m *mockAnalyticsService) LoginTrend(ctx context.Context, days int) ([]models.DailyLoginCount, error) {
	if m.LoginTrendFunc == nil {
		return []models.DailyLoginCount{}, nil
	}
	return m.LoginTrendFunc(ctx, days)
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }
