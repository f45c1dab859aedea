package handlers

import (
	"net/http"

	pkghttp "github.com/BradenHooton/riskauth/pkg/http"
)

// RiskHandler exposes the standalone risk assessment
type RiskHandler struct {
	service  LoginServiceInterface
	ipConfig *pkghttp.IPConfig
}

func NewRiskHandler(service LoginServiceInterface, ipConfig *pkghttp.IPConfig) *RiskHandler {
	return &RiskHandler{service: service, ipConfig: ipConfig}
}

// Assess handles POST /api/risk/assess. Nothing is recorded.
// @Summary Score a login context without signing in
// @Accept json
// @Param request body AssessRequest true "Assessment request"
// @Produce json
// @Success 200 {object} services.RiskAssessmentResult
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /api/risk/assess [post]
func (h *RiskHandler) Assess(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Assess(r.Context(), normalizeEmail(req.Email), req.Signal.toSignal(r, h.ipConfig))
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}
