package httpapi

import (
	"net/http"

	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/middleware"
	"github.com/premproperties/portalauth/permission"
	"github.com/premproperties/portalauth/session"
)

type emailRequest struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Type  string `json:"type"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Type     string `json:"type"`
}

type resetRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Type     string `json:"type"`
	Password string `json:"password"`
}

type successResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Session *sessionView `json:"session,omitempty"`
}

const (
	otpSentMessage   = "If an account exists for this email, an OTP has been sent."
	resetSentMessage = "If an account exists for this email, a reset link has been sent."
)

func (h *Handler) requestOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	kind, err := parseKind(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	purpose, err := portalauth.OTPPurposeFor(kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.engine.RequestOTP(r.Context(), req.Email, purpose); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: otpSentMessage})
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	kind, err := parseKind(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	purpose, err := portalauth.OTPPurposeFor(kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ident, err := h.engine.VerifyOTP(r.Context(), req.Email, purpose, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.startSession(w, r, ident, session.MethodOTP)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	kind, err := parseKind(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ident, err := h.engine.LoginWithPassword(r.Context(), kind, req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.startSession(w, r, ident, session.MethodPassword)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, ident *portalauth.Identity, method string) {
	s, raw, err := h.engine.IssueSession(ident, method)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.SetCookie(w, h.engine.SessionCookie(s.Kind, raw))
	view := viewOf(&s)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Session: &view})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r.URL.Query().Get("type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.SetCookie(w, h.engine.ClearSessionCookie(kind))
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	kind, err := parseKind(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendReset(w, r, kind, req.Email)
}

func (h *Handler) sendReset(w http.ResponseWriter, r *http.Request, kind session.Kind, email string) {
	purpose, err := portalauth.ResetPurposeFor(kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), email, purpose); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: resetSentMessage})
}

func (h *Handler) verifyResetToken(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := parseKind(q.Get("type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	purpose, err := portalauth.ResetPurposeFor(kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if _, err := h.engine.VerifyResetToken(r.Context(), q.Get("email"), purpose, q.Get("token")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	kind, err := parseKind(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	purpose, err := portalauth.ResetPurposeFor(kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.engine.ResetPassword(r.Context(), req.Email, purpose, req.Token, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Password updated. You can now sign in."})
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.fail(w, r, portalauth.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

// adminResetMember lets an admin with Settings send a reset link to a
// member. Authorize runs again here so the check holds without the router.
func (h *Handler) adminResetMember(w http.ResponseWriter, r *http.Request) {
	s, _ := middleware.SessionFromContext(r.Context())
	if err := h.engine.Authorize(r.Context(), s, permission.Settings); err != nil {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "Forbidden"})
		return
	}

	var req emailRequest
	if err := readJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendReset(w, r, session.KindMember, req.Email)
}
