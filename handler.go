package webkit

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/internal/util"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/server"
	"github.com/giantswarm/webkit/session"
	"github.com/giantswarm/webkit/storage"
)

// HandlerConfig configures the HTTP surface of the authorization server.
type HandlerConfig struct {
	// BasePath is the path the handler is mounted at, e.g. "/oauth2"
	BasePath string

	// ServerURL is the public origin, e.g. "https://auth.example.com". It
	// prefixes the form action and enables HSTS for https.
	ServerURL string

	// Templates replaces the pages loaded from the toolkit's template paths
	Templates *Templates

	// RateLimiter limits POST requests per client IP (optional)
	RateLimiter *security.RateLimiter

	// ClientIP resolves the client address for rate limiting and audit events
	ClientIP security.ClientIPResolver
}

// Handler serves the authorization endpoints below a base path:
//
//	GET    <base>/<authorize>   login or consent page
//	GET    <base>/<logout>      closes the session
//	GET    <base>/<info>        authorizations of the logged-in user
//	POST   <base>/<authorize>   runs the grant pipeline
//	DELETE <base>/...           revokes the authorizations of a client
type Handler struct {
	toolkit   *Toolkit
	server    *server.Server
	sessions  *session.Handler
	config    HandlerConfig
	routes    OAuth2Config
	templates Templates
	logger    *slog.Logger
	tracer    trace.Tracer

	formAction string
	post       http.Handler
	chain      http.Handler
}

// NewHandler creates the HTTP handler of tk.
func NewHandler(tk *Toolkit, config HandlerConfig) (*Handler, error) {
	if tk == nil {
		return nil, errors.New("toolkit is required")
	}

	templates := DefaultTemplates()
	if config.Templates != nil {
		templates = *config.Templates
	} else {
		loaded, err := LoadTemplates(tk.Config().Templates)
		if err != nil {
			return nil, err
		}
		templates = loaded
	}

	routes := tk.Config().OAuth2
	h := &Handler{
		toolkit:    tk,
		server:     tk.Server(),
		sessions:   tk.Sessions(),
		config:     config,
		routes:     routes,
		templates:  templates,
		logger:     tk.Logger().With("component", "http"),
		formAction: strings.TrimRight(config.ServerURL, "/") + util.JoinPath(config.BasePath, routes.AuthorizeURI),
	}
	if inst := tk.Instrumentation(); inst != nil {
		h.tracer = inst.Tracer("http")
	}

	h.post = http.HandlerFunc(h.servePost)
	if config.RateLimiter != nil {
		byIP := func(r *http.Request) string { return security.GetClientIP(r.Context()) }
		h.post = config.RateLimiter.Middleware(byIP, tk.Auditor())(h.post)
	}

	var chain http.Handler = http.HandlerFunc(h.dispatch)
	chain = security.SecurityHeadersMiddleware(config.ServerURL)(chain)
	chain = config.ClientIP.Middleware(chain)
	chain = security.RequestIDMiddleware(chain)
	h.chain = chain
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	route := h.route(r.URL.Path)
	endpoint := h.endpointName(route)

	ctx, span := h.startSpan(r.Context(), "webkit.http."+strings.ToLower(r.Method))
	defer span.End()
	r = r.WithContext(ctx)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	switch r.Method {
	case http.MethodGet:
		switch route {
		case h.routes.AuthorizeURI:
			h.serveAuthorize(rec, r)
		case h.routes.LogoutURI:
			h.serveLogout(rec, r)
		case h.routes.InfoURI:
			h.serveInfo(rec, r)
		default:
			h.serveForbidden(rec)
		}
	case http.MethodPost:
		rec.Header().Set("Access-Control-Allow-Origin", "*")
		if route != h.routes.AuthorizeURI {
			writeError(rec, server.ErrorCodeInvalidRequest)
			break
		}
		h.post.ServeHTTP(rec, r)
	case http.MethodDelete:
		h.serveDelete(rec, r)
	default:
		rec.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(rec, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}

	h.recordHTTPMetrics(ctx, endpoint, r.Method, rec.status, start)
	instrumentation.AddHTTPAttributes(span, r.Method, endpoint, rec.status)
	if rec.status >= http.StatusInternalServerError {
		instrumentation.SetSpanError(span, http.StatusText(rec.status))
	}
}

// serveAuthorize renders the consent page when the session already holds
// every requested role, and the login page otherwise.
func (h *Handler) serveAuthorize(w http.ResponseWriter, r *http.Request) {
	params := server.FromValues(r.URL.Query())
	if params.Error == "" && (params.ResponseType == "" || params.ClientID == "") {
		h.serveForbidden(w)
		return
	}

	sess, err := h.sessions.Check(w, r)
	if err != nil {
		h.serveServerError(w, "Failed to check session", err)
		return
	}

	page := h.templates.Login
	name := TemplateLogin
	if roles := scopeRoles(params.Scope); len(roles) > 0 && sess.IsOpen() {
		holdsAll, err := holdsRoles(r.Context(), sess, roles)
		if err != nil {
			h.serveServerError(w, "Failed to read session roles", err)
			return
		}
		if holdsAll {
			page, name = h.templates.Message, TemplateMessage
		}
	}

	h.logger.Debug("Serving authorization page", "template", name, "client_id", params.ClientID)
	h.renderPage(w, http.StatusOK, page, h.pageValues(params))
}

// serveLogout closes the session of the request and renders the logout page.
func (h *Handler) serveLogout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.loadSession(r)
	if err != nil {
		h.serveServerError(w, "Failed to load session", err)
		return
	}
	if sess != nil {
		if err := sess.Close(r.Context()); err != nil {
			h.serveServerError(w, "Failed to close session", err)
			return
		}
	}
	h.renderPage(w, http.StatusOK, h.templates.Logout, h.pageValues(server.FromValues(r.URL.Query())))
}

// serveInfo answers with the authorizations of the logged-in user.
func (h *Handler) serveInfo(w http.ResponseWriter, r *http.Request) {
	username, ok := h.sessionUser(w, r)
	if !ok {
		return
	}
	info := h.server.Information(r.Context(), server.Parameters{
		Username: username,
		ClientID: r.URL.Query().Get("client_id"),
	})
	writeJSON(w, statusForError(info.Error), info)
}

// serveDelete revokes what the logged-in user granted client_id.
func (h *Handler) serveDelete(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeError(w, server.ErrorCodeInvalidRequest)
		return
	}
	username, ok := h.sessionUser(w, r)
	if !ok {
		return
	}
	info := h.server.Delete(r.Context(), server.Parameters{Username: username, ClientID: clientID})
	writeJSON(w, statusForError(info.Error), info)
}

// servePost runs the grant pipeline on the form body. Token requests get a
// JSON answer; authorization requests are redirected to the client.
func (h *Handler) servePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, server.ErrorCodeInvalidRequest)
		return
	}
	req := server.FromValues(r.PostForm)
	if id, secret, ok := r.BasicAuth(); ok && req.ClientID == "" {
		req.ClientID, req.ClientSecret = id, secret
	}

	resp := h.server.Grant(r.Context(), req, h.resolver(w, r))
	if resp.RedirectURI == "" {
		resp.RedirectURI = r.Referer()
	}

	switch req.GrantType {
	case server.GrantTypeAuthorizationCode, server.GrantTypeRefreshToken, server.GrantTypePassword:
		writeJSON(w, statusForError(resp.Error), resp.JSON())
		return
	}

	target := resp.RedirectURI
	if target == "" {
		writeError(w, server.ErrorCodeInvalidRequest)
		return
	}
	resp.RedirectURI = ""
	http.Redirect(w, r, appendQuery(target, resp.Values()), http.StatusFound)
}

func (h *Handler) serveForbidden(w http.ResponseWriter) {
	h.renderPage(w, http.StatusForbidden, h.templates.Error, map[string]string{
		"error":             "403",
		"error_description": http.StatusText(http.StatusForbidden),
	})
}

func (h *Handler) serveServerError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	h.renderPage(w, http.StatusInternalServerError, h.templates.Error, map[string]string{
		"error":             "500",
		"error_description": http.StatusText(http.StatusInternalServerError),
	})
}

func (h *Handler) renderPage(w http.ResponseWriter, status int, page string, values map[string]string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(Render(page, values)))
}

// pageValues returns the template values of params, HTML escaped since
// Render inserts them verbatim.
func (h *Handler) pageValues(params server.Parameters) map[string]string {
	values := make(map[string]string)
	for name, value := range params.Map() {
		values[name] = html.EscapeString(value)
	}
	values[FormActionTag] = html.EscapeString(h.formAction)
	return values
}

// resolver returns a SessionResolver checking the request session at most
// once.
func (h *Handler) resolver(w http.ResponseWriter, r *http.Request) server.SessionResolver {
	var (
		once sync.Once
		sess *session.Session
		err  error
	)
	return func(context.Context) (*session.Session, error) {
		once.Do(func() { sess, err = h.sessions.Check(w, r) })
		return sess, err
	}
}

// loadSession returns the valid session carried by r, or nil.
func (h *Handler) loadSession(r *http.Request) (*session.Session, error) {
	token := h.sessions.Config().Carrier.Extract(r)
	if token == "" {
		return nil, nil
	}
	sess, err := h.sessions.Load(r.Context(), token)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, nil
	}
	return sess, err
}

// sessionUser returns the user logged into the request session. It writes
// the error response itself when there is none.
func (h *Handler) sessionUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	sess, err := h.loadSession(r)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err)
		writeError(w, server.ErrorCodeServerError)
		return "", false
	}
	if sess == nil {
		writeError(w, server.ErrorCodeAccessDenied)
		return "", false
	}

	username, err := sess.Roles().GetProperty(r.Context(), server.SessionRole, server.SessionUsernameProperty)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("Failed to read session user", "error", err)
		writeError(w, server.ErrorCodeServerError)
		return "", false
	}
	if username == "" {
		writeError(w, server.ErrorCodeAccessDenied)
		return "", false
	}
	return username, true
}

// route returns the path below the base path without surrounding slashes.
func (h *Handler) route(path string) string {
	base := strings.TrimRight(h.config.BasePath, "/")
	rest, ok := strings.CutPrefix(path, base)
	if !ok {
		return ""
	}
	return strings.Trim(rest, "/")
}

func (h *Handler) endpointName(route string) string {
	switch route {
	case h.routes.AuthorizeURI:
		return "authorize"
	case h.routes.LogoutURI:
		return "logout"
	case h.routes.InfoURI:
		return "info"
	default:
		return "other"
	}
}

func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return h.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String(instrumentation.AttrHTTPEndpoint, name),
	))
}

func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, start time.Time) {
	inst := h.toolkit.Instrumentation()
	if inst == nil {
		return
	}
	durationMs := time.Since(start).Seconds() * 1000
	inst.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, durationMs)
}

// scopeRoles splits a scope on spaces and '+'.
func scopeRoles(scope string) []string {
	return strings.FieldsFunc(scope, func(r rune) bool { return r == ' ' || r == '+' })
}

func holdsRoles(ctx context.Context, sess *session.Session, roles []string) (bool, error) {
	for _, role := range roles {
		held, err := sess.Roles().Is(ctx, role)
		if err != nil || !held {
			return false, err
		}
	}
	return true, nil
}

// appendQuery adds values to the query of target.
func appendQuery(target string, values url.Values) string {
	encoded := values.Encode()
	if encoded == "" {
		return target
	}
	if strings.Contains(target, "?") {
		return target + "&" + encoded
	}
	return target + "?" + encoded
}

// statusRecorder captures the status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
