package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/internal/util"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/session"
	"github.com/giantswarm/webkit/storage"
)

// SessionResolver returns the authorization-server session of the user
// agent behind a request. It backs the single sign-on path
// (authorize=authorize) and the stamping of that session after a login.
type SessionResolver func(ctx context.Context) (*session.Session, error)

// grantError carries an OAuth error code out of a grant step.
type grantError struct {
	code   string
	reason string
}

func (e *grantError) Error() string {
	if e.reason == "" {
		return e.code
	}
	return e.code + ": " + e.reason
}

func deny(code, reason string) error {
	return &grantError{code: code, reason: reason}
}

// grantState is the working set of one Grant call.
type grantState struct {
	params  Parameters
	resolve SessionResolver
	ip      string

	// redirect is the redirect URI once the client has accepted it.
	redirect string

	client *Client
	user   *User
	code   *Code
	roles  []string
	scope  string
}

// Grant runs the authorization pipeline over a request and returns the
// response parameters. Failures are reported through the error fields of
// the response; Grant itself never fails. A nil resolve disables single
// sign-on. The client IP for audit events is taken from
// security.GetClientIP(ctx).
func (s *Server) Grant(ctx context.Context, req Parameters, resolve SessionResolver) (resp Parameters) {
	start := s.now()
	ctx, span := s.startSpan(ctx, "oauth2.grant")
	defer span.End()
	instrumentation.AddGrantAttributes(span, req.GrantType, req.ResponseType, req.ClientID, req.Scope)

	g := &grantState{params: req, resolve: resolve, ip: security.GetClientIP(ctx)}
	resp = Parameters{State: req.State}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic in grant", "panic", r, "stack", string(debug.Stack()))
			s.audit().LogEvent(security.Event{
				Type:      security.EventGrantPanic,
				ClientID:  req.ClientID,
				IPAddress: g.ip,
				Details:   map[string]any{"panic": fmt.Sprint(r)},
			})
			resp = Parameters{RedirectURI: g.redirect, State: req.State}
			resp.SetError(ErrorCodeServerError)
		}

		if resp.HasError() {
			instrumentation.AddOAuthErrorAttributes(span, resp.Error, resp.ErrorDescription)
			s.audit().LogGrantDenied(g.username(), req.ClientID, g.ip, resp.Error)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		if m := s.metrics(); m != nil {
			durationMs := float64(s.now().Sub(start).Microseconds()) / 1000.0
			m.RecordGrant(ctx, req.GrantType, req.ResponseType, resp.Error, durationMs)
		}
	}()

	if err := s.grant(ctx, g, &resp); err != nil {
		var ge *grantError
		code := ErrorCodeServerError
		if errors.As(err, &ge) {
			code = ge.code
			s.logger.Debug("Grant denied", "client_id", req.ClientID, "error", ge.Error())
		} else {
			s.logger.Error("Grant failed", "client_id", req.ClientID, "error", err)
			instrumentation.RecordError(span, err)
		}
		resp = Parameters{RedirectURI: g.redirect, State: req.State}
		resp.SetError(code)
	}
	return resp
}

func (s *Server) grant(ctx context.Context, g *grantState, resp *Parameters) error {
	p := &g.params
	if p.GrantType == GrantTypeRefreshToken {
		p.GrantType = GrantTypeAuthorizationCode
		p.Code = p.RefreshToken
	}
	if p.GrantType == GrantTypePassword && p.ResponseType == "" {
		p.ResponseType = ResponseTypeToken
	}

	if err := s.checkClient(ctx, g); err != nil {
		return err
	}
	g.redirect = p.RedirectURI
	resp.RedirectURI = g.redirect

	if err := s.checkCredentials(ctx, g); err != nil {
		return err
	}

	// The roles of a code are fixed when it is issued.
	if g.code != nil {
		g.roles = g.code.Roles
		g.scope = g.code.Scope()
	} else {
		g.scope = strings.ReplaceAll(strings.TrimSpace(p.Scope), " ", scopeSep)
		g.roles = util.SplitList(g.scope, scopeSep)
	}

	if err := s.checkRoleAllowance(g); err != nil {
		return err
	}

	if g.code != nil {
		err := s.codes.Claim(ctx, g.code.Code)
		if errors.Is(err, ErrCodeNotFound) {
			return deny(ErrorCodeAccessDenied, "code already used")
		}
		if err != nil {
			return err
		}
	}

	var codeValue, accessToken string
	var err error
	if p.ResponseType == ResponseTypeCode {
		codeValue, err = s.issueCode(ctx, g, resp)
	} else {
		codeValue, accessToken, err = s.issueAccessToken(ctx, g, resp)
	}
	if err != nil {
		return err
	}

	if err := s.store.Write(ctx, relationKey(g.user.Username, g.client.ID, codeValue, accessToken), placeholderValue); err != nil {
		return fmt.Errorf("failed to write authorization relation: %w", err)
	}
	return nil
}

// checkClient resolves the client and the redirect URI and validates the
// response type.
func (s *Server) checkClient(ctx context.Context, g *grantState) error {
	p := &g.params
	client, err := s.clients.Load(ctx, p.ClientID)
	if errors.Is(err, ErrClientNotFound) {
		return deny(ErrorCodeInvalidClient, "unknown client")
	}
	if err != nil {
		return err
	}
	g.client = client

	switch {
	case p.RedirectURI == "":
		if len(client.RedirectURIs) > 0 {
			p.RedirectURI = client.RedirectURIs[0]
		}
	case !client.HasRedirectURI(p.RedirectURI):
		return deny(ErrorCodeInvalidGrant, "redirect_uri not registered")
	}

	if p.ResponseType != ResponseTypeCode && p.ResponseType != ResponseTypeToken && p.GrantType != GrantTypeAuthorizationCode {
		return deny(ErrorCodeUnsupportedResponseType, p.ResponseType)
	}
	return nil
}

// checkCredentials authenticates the client when a secret is presented and
// resolves the resource owner through the code, the single sign-on session
// or the username and password.
func (s *Server) checkCredentials(ctx context.Context, g *grantState) error {
	p := &g.params
	if p.ClientSecret != "" && !g.client.CorrectCredentials(p.ClientSecret) {
		s.audit().LogAuthFailure("", p.ClientID, g.ip, "client secret mismatch")
		return deny(ErrorCodeUnauthorizedClient, "client secret mismatch")
	}

	var username string
	switch {
	case p.GrantType == GrantTypeAuthorizationCode:
		code, err := s.codes.Load(ctx, p.Code)
		if errors.Is(err, ErrCodeNotFound) {
			return deny(ErrorCodeAccessDenied, "unknown code")
		}
		if err != nil {
			return err
		}
		if code.ClientID != p.ClientID {
			return deny(ErrorCodeAccessDenied, "code issued to another client")
		}
		g.code = code
		username = code.Username

	case p.Authorize == AuthorizeConfirmation:
		name, err := s.sessionUsername(ctx, g)
		if err != nil {
			return err
		}
		username = name

	default:
		if p.Username == "" || p.Password == "" {
			return deny(ErrorCodeAccessDenied, "missing credentials")
		}
		username = p.Username
	}

	user, err := s.users.Load(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		s.audit().LogAuthFailure(username, p.ClientID, g.ip, "unknown user")
		return deny(ErrorCodeAccessDenied, "unknown user")
	}
	if err != nil {
		return err
	}
	if g.code == nil && p.Authorize != AuthorizeConfirmation && !user.CorrectCredentials(p.Password) {
		s.audit().LogAuthFailure(username, p.ClientID, g.ip, "password mismatch")
		return deny(ErrorCodeAccessDenied, "password mismatch")
	}
	g.user = user
	return nil
}

// sessionUsername returns the user logged into the authorization-server
// session. A session without one is closed.
func (s *Server) sessionUsername(ctx context.Context, g *grantState) (string, error) {
	if g.resolve == nil {
		return "", deny(ErrorCodeAccessDenied, "no session")
	}
	sess, err := g.resolve(ctx)
	if err != nil {
		return "", err
	}
	if !sess.IsOpen() {
		return "", deny(ErrorCodeAccessDenied, "no session")
	}

	username, err := sess.Roles().GetProperty(ctx, SessionRole, SessionUsernameProperty)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	if username == "" {
		if err := sess.Close(ctx); err != nil {
			return "", err
		}
		return "", deny(ErrorCodeAccessDenied, "session carries no user")
	}
	return username, nil
}

// checkRoleAllowance requires every requested role on both the client and
// the user.
func (s *Server) checkRoleAllowance(g *grantState) error {
	for _, role := range g.roles {
		if !g.client.HasRole(role) || !g.user.HasRole(role) {
			s.audit().LogEvent(security.Event{
				Type:      security.EventScopeEscalationAttempt,
				UserID:    g.user.Username,
				ClientID:  g.client.ID,
				IPAddress: g.ip,
				Details:   map[string]any{"role": role},
			})
			return deny(ErrorCodeInvalidScope, role)
		}
	}
	return nil
}

// issueCode creates an authorization code and logs the user into the
// authorization-server session.
func (s *Server) issueCode(ctx context.Context, g *grantState, resp *Parameters) (string, error) {
	code, err := s.codes.Create(ctx, g.client.ID, g.user.Username, g.roles)
	if err != nil {
		return "", err
	}
	resp.Code = code.Code

	if err := s.stampUserSession(ctx, g); err != nil {
		return "", err
	}

	if m := s.metrics(); m != nil {
		m.RecordCodeIssued(ctx, g.client.ID)
	}
	s.audit().LogCodeIssued(g.user.Username, g.client.ID, g.ip, g.scope)
	return code.Code, nil
}

// issueAccessToken opens a session carrying the granted roles. Code
// exchanges hand their relation keys to a refresh token unless disabled;
// other grants log the user into the authorization-server session.
func (s *Server) issueAccessToken(ctx context.Context, g *grantState, resp *Parameters) (string, string, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return "", "", err
	}
	for _, role := range g.roles {
		props, ok := g.user.Roles[role]
		if !ok {
			continue
		}
		if err := copyRole(ctx, sess, role, props); err != nil {
			return "", "", err
		}
	}

	resp.AccessToken = sess.Token()
	resp.TokenType = TokenTypeBearer
	resp.Scope = g.scope

	var relationCode string
	if g.params.GrantType == GrantTypeAuthorizationCode {
		if !s.config.DisableRefreshToken {
			if remaining := sess.TimeRemaining(); remaining >= 0 {
				resp.ExpiresIn = strconv.FormatInt(int64(remaining.Seconds()), 10)
			}
			refresh, err := s.codes.Create(ctx, g.client.ID, g.user.Username, g.roles)
			if err != nil {
				return "", "", err
			}
			resp.RefreshToken = refresh.Code
			relationCode = refresh.Code
			if m := s.metrics(); m != nil {
				m.RecordRefreshTokenIssued(ctx, g.client.ID)
			}
		}
		if err := s.moveRelations(ctx, g, relationCode); err != nil {
			return "", "", err
		}
	} else if err := s.stampUserSession(ctx, g); err != nil {
		return "", "", err
	}

	if m := s.metrics(); m != nil {
		m.RecordTokenIssued(ctx, g.client.ID, g.params.GrantType)
	}
	s.audit().LogTokenIssued(g.user.Username, g.client.ID, g.ip, g.scope)
	return relationCode, sess.Token(), nil
}

// moveRelations hands the relation keys of the claimed code over to the
// refresh token that replaces it, so earlier access tokens stay revocable.
// The key recording the bare code is dropped. Without a refresh token the
// access-token keys keep the spent code.
func (s *Server) moveRelations(ctx context.Context, g *grantState, refresh string) error {
	relations, err := s.relations(ctx, g.user.Username, g.client.ID)
	if err != nil {
		return err
	}
	for _, rel := range relations {
		if rel.Code != g.code.Code {
			continue
		}
		switch {
		case rel.AccessToken == "":
		case refresh != "":
			moved := relationKey(rel.Username, rel.ClientID, refresh, rel.AccessToken)
			if err := s.store.Write(ctx, moved, placeholderValue); err != nil {
				return fmt.Errorf("failed to move code relation: %w", err)
			}
		default:
			continue
		}
		if err := s.store.Destroy(ctx, rel.key()); err != nil {
			return fmt.Errorf("failed to destroy code relation: %w", err)
		}
	}
	return nil
}

// stampUserSession logs the user into the authorization-server session: the
// SessionRole with the username plus every role of the user with its
// properties.
func (s *Server) stampUserSession(ctx context.Context, g *grantState) error {
	if g.resolve == nil {
		return nil
	}
	sess, err := g.resolve(ctx)
	if err != nil {
		return err
	}
	if !sess.IsOpen() {
		return nil
	}

	if err := copyRole(ctx, sess, SessionRole, map[string]string{SessionUsernameProperty: g.user.Username}); err != nil {
		return err
	}
	for _, role := range g.user.RoleNames() {
		if err := copyRole(ctx, sess, role, g.user.Roles[role]); err != nil {
			return err
		}
	}
	return nil
}

// copyRole adds role to sess, if not held yet, and sets its properties.
func copyRole(ctx context.Context, sess *session.Session, role string, props map[string]string) error {
	if _, err := sess.Roles().Add(ctx, role); err != nil {
		return err
	}
	for key, value := range props {
		if err := sess.Roles().SetProperty(ctx, role, key, value); err != nil {
			return err
		}
	}
	return nil
}

func (g *grantState) username() string {
	if g.user != nil {
		return g.user.Username
	}
	return g.params.Username
}
