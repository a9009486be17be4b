package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/bizsync/internal/server/models"
	"github.com/dmitrijs2005/bizsync/internal/server/services"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	CompanyName string `json:"companyName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	tokensResponse
	Session models.Identity `json:"session"`
}

func toTokens(p *services.TokenPair) tokensResponse {
	return tokensResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}

func (r *Router) register(w http.ResponseWriter, req *http.Request) {
	var in registerRequest
	if err := decodeData(w, req, &in); err != nil {
		r.fail(w, req, err)
		return
	}

	user, err := r.users.Register(req.Context(), in.Email, in.Password, in.DisplayName, in.CompanyName)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	r.logger.Info(req.Context(), "Registered", "user", user.ID, "company", user.CompanyID)
	respondJSON(w, http.StatusCreated, map[string]string{
		"userId":    user.ID,
		"companyId": user.CompanyID,
	})
}

func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var in loginRequest
	if err := decodeData(w, req, &in); err != nil {
		r.fail(w, req, err)
		return
	}

	pair, user, err := r.users.Login(req.Context(), in.Email, in.Password)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{tokensResponse: toTokens(pair), Session: user.Identity()})
}

func (r *Router) refresh(w http.ResponseWriter, req *http.Request) {
	var in refreshRequest
	if err := decodeData(w, req, &in); err != nil {
		r.fail(w, req, err)
		return
	}
	if in.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	pair, err := r.users.RefreshToken(req.Context(), in.RefreshToken)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, toTokens(pair))
}
