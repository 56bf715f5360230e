package httpapi

import (
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/middleware"
	"github.com/premproperties/portalauth/permission"
	"github.com/premproperties/portalauth/session"
)

const (
	adminLoginPath  = "/admin/login"
	memberLoginPath = "/login"
)

// Handler serves the auth routes. Metrics may be nil, in which case
// /metrics is not mounted.
type Handler struct {
	engine  *portalauth.Engine
	logger  *zap.Logger
	metrics http.Handler
	proxies []netip.Prefix
}

func New(engine *portalauth.Engine, logger *zap.Logger, metrics http.Handler) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger, metrics: metrics}
}

// WithTrustedProxies lists the reverse proxies whose X-Forwarded-For header
// is honoured. With none configured the peer address is always used.
func (h *Handler) WithTrustedProxies(proxies []netip.Prefix) *Handler {
	h.proxies = append([]netip.Prefix(nil), proxies...)
	return h
}

// Router builds the chi router with every route mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer, withClientIP(h.proxies))

	r.Get("/healthz", h.healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/otp/request", h.requestOTP)
		r.Post("/otp/verify", h.verifyOTP)
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
		r.Post("/password/forgot", h.forgotPassword)
		r.Get("/password/verify", h.verifyResetToken)
		r.Post("/password/reset", h.resetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(h.engine, session.KindMember, memberLoginPath))
		r.Get("/api/member/session", h.currentSession)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RequireSession(h.engine, session.KindAdmin, adminLoginPath))
		r.Get("/session", h.currentSession)
		r.With(middleware.RequirePermission(permission.Settings)).
			Post("/members/reset", h.adminResetMember)
	})

	return r
}

type sessionView struct {
	Authenticated bool      `json:"authenticated"`
	Type          string    `json:"type"`
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	Role          string    `json:"role"`
	Permissions   []string  `json:"permissions,omitempty"`
	LoginMethod   string    `json:"loginMethod"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func viewOf(s *session.Session) sessionView {
	v := sessionView{
		Authenticated: s.Authenticated,
		Type:          string(s.Kind),
		ID:            s.Subject,
		Email:         s.Email,
		Name:          s.Name,
		Role:          string(s.Role),
		LoginMethod:   s.LoginMethod,
		ExpiresAt:     s.ExpiresAt,
	}
	if s.Kind == session.KindAdmin {
		v.Permissions = s.Permissions.Names()
	}
	return v
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail writes the mapped status and message. Server-side failures are
// logged with the underlying error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("auth request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	body := errorBody{Error: messageFor(err)}
	var mismatch *portalauth.MismatchError
	if errors.As(err, &mismatch) {
		remaining := mismatch.Remaining
		body.Remaining = &remaining
	}
	writeJSON(w, status, body)
}

func parseKind(raw string) (session.Kind, error) {
	kind, ok := session.ParseKind(raw)
	if !ok {
		return "", portalauth.ErrInvalidPurpose
	}
	return kind, nil
}
