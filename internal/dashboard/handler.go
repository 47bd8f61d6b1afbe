package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mlaverdet/velodash/internal/activities"
	"github.com/mlaverdet/velodash/internal/telemetry/tracing"
	"github.com/mlaverdet/velodash/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type codeExchanger interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
}

type loginService interface {
	Login(ctx context.Context, createdAt time.Time) (string, error)
	Logout(ctx context.Context, token string) (bool, error)
}

type sessionChecker interface {
	IsLogged(ctx context.Context, token string) (bool, error)
}

type Handler struct {
	service        *Service
	oauth          codeExchanger
	authService    loginService
	loginChecker   sessionChecker
	frontendOrigin string
}

func NewHandler(
	service *Service,
	oauth codeExchanger,
	authService loginService,
	loginChecker sessionChecker,
	frontendOrigin string,
) *Handler {
	return &Handler{
		service:        service,
		oauth:          oauth,
		authService:    authService,
		loginChecker:   loginChecker,
		frontendOrigin: frontendOrigin,
	}
}

type dashboardResponse struct {
	*Dashboard
	// set when this request established the session via auth code
	Token string `json:"token,omitempty"`
}

// HandleDashboard serves the main dashboard payload. The caller either
// has a session token from an earlier visit, or brings the auth code
// from the OAuth redirect and gets a fresh session token back in the
// payload.
func (handler *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "dashboard.handleDashboard")
	defer span.End()

	sessionToken := r.Header.Get("X-VELO-TOKEN")
	newToken := ""

	switch {
	case sessionToken != "":
		isLogged, err := handler.loginChecker.IsLogged(ctx, sessionToken)
		if err != nil || !isLogged {
			writeJSONError(w, "invalid session", http.StatusUnauthorized)
			return
		}
	default:
		code := r.URL.Query().Get("code")
		if code == "" {
			writeJSONError(w, "missing code", http.StatusBadRequest)
			return
		}
		if _, err := handler.oauth.ExchangeCode(ctx, code); err != nil {
			log.Errorf("dashboard: code exchange: %s", err)
			writeJSONError(w, "authorization failed", http.StatusUnauthorized)
			return
		}
		token, err := handler.authService.Login(ctx, time.Now())
		if err != nil {
			log.Errorf("dashboard: create session: %s", err)
			writeJSONError(w, "login failed", http.StatusInternalServerError)
			return
		}
		newToken = token
	}

	dashboard, err := handler.service.Build(ctx)
	if err != nil {
		log.Errorf("dashboard: build: %s", err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respBytes, err := json.Marshal(dashboardResponse{
		Dashboard: dashboard,
		Token:     newToken,
	})
	if err != nil {
		log.Errorf("dashboard: marshal response: %s", err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respBytes)
}

func (handler *Handler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "dashboard.handleActivity")
	defer span.End()

	vars := mux.Vars(r)
	idStr := vars["id"]
	if idStr == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	view, err := handler.service.ActivityDetail(ctx, id)
	if err != nil {
		if errors.Is(err, activities.ErrActivityNotFound) {
			http.Error(w, "activity not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get activity %d: %s", id, err)
		http.Error(w, "failed to get activity", http.StatusInternalServerError)
		return
	}

	viewJson, err := json.Marshal(view)
	if err != nil {
		log.Errorf("failed to marshal activity %d: %s", id, err)
		http.Error(w, "failed to marshal activity", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, viewJson)
}

func (handler *Handler) HandleYearsProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "dashboard.handleYearsProgress")
	defer span.End()

	progress, err := handler.service.YearsProgress(ctx)
	if err != nil {
		log.Errorf("failed to get years progress: %s", err)
		http.Error(w, "failed to get years progress", http.StatusInternalServerError)
		return
	}

	progressJson, err := json.Marshal(progress)
	if err != nil {
		log.Errorf("failed to marshal years progress: %s", err)
		http.Error(w, "failed to marshal years progress", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, progressJson)
}

func (handler *Handler) HandleWeightHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "dashboard.handleWeightHistory")
	defer span.End()

	days := 365
	if daysParam := r.URL.Query().Get("days"); daysParam != "" {
		parsed, err := strconv.Atoi(daysParam)
		if err != nil || parsed <= 0 {
			http.Error(w, "error, days NaN", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	history, err := handler.service.WeightHistory(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		log.Errorf("failed to get weight history: %s", err)
		http.Error(w, "failed to get weight history", http.StatusInternalServerError)
		return
	}

	historyJson, err := json.Marshal(history)
	if err != nil {
		log.Errorf("failed to marshal weight history: %s", err)
		http.Error(w, "failed to marshal weight history", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, historyJson)
}

// HandleLogin sends the browser off to the activity source's
// authorization page.
func (handler *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := pkg.GenerateRandomString(16)
	if err != nil {
		log.Errorf("login: generate state: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, handler.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleRedirect is the OAuth callback: trade the code for a token,
// establish a session, and bounce back to the front end.
func (handler *Handler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "dashboard.handleRedirect")
	defer span.End()

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSONError(w, "missing code", http.StatusBadRequest)
		return
	}

	if _, err := handler.oauth.ExchangeCode(ctx, code); err != nil {
		log.Errorf("redirect: code exchange: %s", err)
		writeJSONError(w, "authorization failed", http.StatusUnauthorized)
		return
	}

	token, err := handler.authService.Login(ctx, time.Now())
	if err != nil {
		log.Errorf("redirect: create session: %s", err)
		writeJSONError(w, "login failed", http.StatusInternalServerError)
		return
	}

	http.Redirect(
		w, r,
		fmt.Sprintf("%s/login?token=%s", handler.frontendOrigin, token),
		http.StatusFound,
	)
}

func (handler *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "dashboard.handleLogout")
	defer span.End()

	sessionToken := r.Header.Get("X-VELO-TOKEN")
	if sessionToken == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	loggedOut, err := handler.authService.Logout(ctx, sessionToken)
	if err != nil || !loggedOut {
		log.Errorf("logout failed: %v", err)
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	pkg.WriteTextResponseOK(w, "logged-out")
}

func (handler *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "dashboard.handleCheck")
	defer span.End()

	logged := false
	if sessionToken := r.Header.Get("X-VELO-TOKEN"); sessionToken != "" {
		isLogged, err := handler.loginChecker.IsLogged(ctx, sessionToken)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Tracef("session check: %s", err)
		}
		logged = err == nil && isLogged
	}

	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"logged":%t}`, logged))
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	errJson, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, errJson, statusCode)
}
