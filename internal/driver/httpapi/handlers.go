package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ex-calypso/modules/jetpackconnect"
	"ex-calypso/modules/onboarding"
	"ex-calypso/pkg/calypso"
	"ex-calypso/pkg/jetpack"
	"ex-calypso/pkg/paths"
)

const maxActionBodyBytes = 1 << 20

// Handler returns the API router dispatching into dispatcher.
func (d *Driver) Handler(dispatcher calypso.Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(d.logRequests)

	api := &api{
		dispatcher:      dispatcher,
		dispatchTimeout: d.dispatchTimeout,
		services:        d.services,
		login:           d.login,
	}

	r.Get("/healthz", api.handleHealth)
	r.Post("/actions", api.handleDispatch)
	r.Get("/notices", api.handleNotices)
	r.Get("/paths/login", api.handleLoginURL)
	r.Get("/comments/pending", api.handlePendingComments)
	r.Route("/sites/{siteID}", func(r chi.Router) {
		r.Get("/comments", api.handleCommentPage)
		r.Get("/onboarding", api.handleOnboarding)
	})
	r.Route("/jetpack/connect", func(r chi.Router) {
		r.Post("/check", api.handleConnectCheck)
		r.Get("/status", api.handleConnectStatus)
		r.Post("/instructions", api.handleConnectInstructions)
	})

	return r
}

func (d *Driver) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(wrapped, r)

		d.logger.DebugContext(r.Context(), "http request",
			"driver", d.name,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(startedAt),
		)
	})
}

type api struct {
	dispatcher      calypso.Dispatcher
	dispatchTimeout time.Duration
	services        calypso.ServiceRegistry
	login           paths.LoginConfig
}

type errorResponse struct {
	Error string `json:"error"`
}

type dispatchResponse struct {
	ID   string             `json:"id"`
	Kind calypso.ActionKind `json:"type"`
}

type connectStatusResponse struct {
	URL        string            `json:"url"`
	Status     jetpack.Status    `json:"status"`
	IsFetching bool              `json:"isFetching"`
	IsFetched  bool              `json:"isFetched"`
	Redirect   *jetpack.Redirect `json:"redirect"`
	Steps      []string          `json:"instructions,omitempty"`
}

type connectCheckRequest struct {
	URL          string `json:"url"`
	IsURLOnSites bool   `json:"isUrlOnSites"`
}

type commentPageResponse struct {
	SiteID    int64                `json:"siteId"`
	Scope     calypso.CommentScope `json:"scope"`
	Signature string               `json:"signature"`
	Page      int                  `json:"page"`
	IDs       []int64              `json:"ids"`
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var action calypso.Action
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBodyBytes))
	if err := decoder.Decode(&action); err != nil {
		writeError(w, http.StatusBadRequest, "invalid action body")
		return
	}

	a.dispatch(w, r, &action)
}

func (a *api) dispatch(w http.ResponseWriter, r *http.Request, action *calypso.Action) {
	ctx, cancel := context.WithTimeout(r.Context(), a.dispatchTimeout)
	defer cancel()

	if err := a.dispatcher.Dispatch(ctx, action); err != nil {
		if errors.Is(err, calypso.ErrInvalidAction) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, dispatchResponse{ID: action.ID, Kind: action.Kind})
}

func (a *api) handleNotices(w http.ResponseWriter, r *http.Request) {
	log, ok := resolve[calypso.NoticeLog](w, a.services, calypso.ServiceNoticeLog)
	if !ok {
		return
	}

	notices, err := log.Notices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if notices == nil {
		notices = []calypso.Notice{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"notices": notices})
}

func (a *api) handleLoginURL(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	native, _ := strconv.ParseBool(query.Get("native"))

	writeJSON(w, http.StatusOK, map[string]string{
		"url": paths.Login(a.login, paths.LoginOptions{
			IsNative:          native,
			Locale:            query.Get("locale"),
			RedirectTo:        query.Get("redirect_to"),
			EmailAddress:      query.Get("email_address"),
			TwoFactorAuthType: query.Get("two_factor_auth_type"),
			SocialService:     query.Get("social_service"),
			SocialConnect:     query.Get("social_connect") == "true",
		}),
	})
}

func (a *api) handlePendingComments(w http.ResponseWriter, r *http.Request) {
	store, ok := resolve[calypso.CommentQueryStore](w, a.services, calypso.ServiceCommentQueryStore)
	if !ok {
		return
	}

	pending, err := store.PendingActions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pending == nil {
		pending = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (a *api) handleCommentPage(w http.ResponseWriter, r *http.Request) {
	siteID, ok := siteIDParam(w, r)
	if !ok {
		return
	}

	params := r.URL.Query()
	query := calypso.CommentQuery{
		Page:   1,
		Order:  params.Get("order"),
		Search: params.Get("search"),
		Status: params.Get("status"),
	}
	if raw := params.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		query.Page = page
	}
	if raw := params.Get("postId"); raw != "" {
		postID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "postId must be an integer")
			return
		}
		query.PostID = postID
	}

	store, ok := resolve[calypso.CommentQueryStore](w, a.services, calypso.ServiceCommentQueryStore)
	if !ok {
		return
	}
	ids, found, err := store.CommentPage(r.Context(), siteID, query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "comment page not cached")
		return
	}

	writeJSON(w, http.StatusOK, commentPageResponse{
		SiteID:    siteID,
		Scope:     query.Scope(),
		Signature: query.Signature(),
		Page:      query.Page,
		IDs:       ids,
	})
}

func (a *api) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	siteID, ok := siteIDParam(w, r)
	if !ok {
		return
	}
	store, ok := resolve[onboarding.SettingsStore](w, a.services, onboarding.ServiceSettingsStore)
	if !ok {
		return
	}

	settings, found := store.Settings(siteID)
	if !found {
		settings = map[string]any{}
	}
	_, hasCredentials := store.Credentials(siteID)

	writeJSON(w, http.StatusOK, map[string]any{
		"siteId":         siteID,
		"settings":       settings,
		"hasCredentials": hasCredentials,
	})
}

func (a *api) handleConnectCheck(w http.ResponseWriter, r *http.Request) {
	var request connectCheckRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBodyBytes))
	if err := decoder.Decode(&request); err != nil || jetpack.CleanURL(request.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	a.dispatch(w, r, jetpackconnect.CheckURL(request.URL, request.IsURLOnSites))
}

func (a *api) handleConnectStatus(w http.ResponseWriter, r *http.Request) {
	store, ok := resolve[jetpackconnect.SiteStore](w, a.services, jetpackconnect.ServiceSiteStore)
	if !ok {
		return
	}

	currentURL := jetpack.CleanURL(r.URL.Query().Get("url"))
	response := connectStatusResponse{
		URL:    currentURL,
		Status: store.Status(currentURL),
	}
	if record, found := store.Site(currentURL); found {
		response.IsFetching = jetpack.IsCurrentURLFetching(currentURL, &record)
		response.IsFetched = jetpack.IsCurrentURLFetched(currentURL, &record)
	}
	if redirect, found := store.Redirect(currentURL); found {
		response.Redirect = &redirect
	}
	if instructions, found := jetpack.InstructionsFor(response.Status); found {
		response.Steps = instructions.Steps
	}

	writeJSON(w, http.StatusOK, response)
}

func (a *api) handleConnectInstructions(w http.ResponseWriter, r *http.Request) {
	store, ok := resolve[jetpackconnect.SiteStore](w, a.services, jetpackconnect.ServiceSiteStore)
	if !ok {
		return
	}

	redirect, fired := store.FollowInstructions(r.URL.Query().Get("url"))
	if !fired {
		writeError(w, http.StatusConflict, "no instruction redirect available")
		return
	}

	writeJSON(w, http.StatusOK, redirect)
}

func siteIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	siteID, err := strconv.ParseInt(chi.URLParam(r, "siteID"), 10, 64)
	if err != nil || siteID <= 0 {
		writeError(w, http.StatusBadRequest, "siteID must be a positive integer")
		return 0, false
	}

	return siteID, true
}

// resolve looks up a read service, answering 503 when it is not wired.
func resolve[T any](w http.ResponseWriter, services calypso.ServiceRegistry, name string) (T, bool) {
	var zero T
	if services == nil {
		writeError(w, http.StatusServiceUnavailable, "service registry unavailable")
		return zero, false
	}

	service, err := calypso.ResolveAs[T](services, name)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return zero, false
	}

	return service, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
