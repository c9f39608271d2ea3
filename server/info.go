package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/session"
	"github.com/giantswarm/webkit/storage"
)

// Info is the JSON body of the information and revocation endpoints. Data is
// a list of AuthorizedClient when no client was named, otherwise the list of
// live codes of that client.
type Info struct {
	Data             any    `json:"data,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// AuthorizedClient is a client the user has authorized.
type AuthorizedClient struct {
	ClientID        string `json:"client_id"`
	ApplicationName string `json:"application_name"`
}

func infoError(code string) Info {
	return Info{Error: code, ErrorDescription: ErrorDescription(code)}
}

// Information lists what params.Username has authorized: the clients when
// params.ClientID is empty, otherwise the codes held by that client.
func (s *Server) Information(ctx context.Context, params Parameters) Info {
	ctx, span := s.startSpan(ctx, "oauth2.information")
	defer span.End()

	info, err := s.information(ctx, params)
	if err != nil {
		s.logger.Error("Failed to read authorizations", "client_id", params.ClientID, "error", err)
		return infoError(ErrorCodeServerError)
	}
	return info
}

func (s *Server) information(ctx context.Context, params Parameters) (Info, error) {
	if validateUsername(params.Username) != nil {
		return infoError(ErrorCodeAccessDenied), nil
	}

	if params.ClientID == "" {
		relations, err := s.relations(ctx, params.Username, storage.Wildcard)
		if err != nil {
			return Info{}, err
		}
		clients := []AuthorizedClient{}
		for _, id := range distinct(relations, func(r relation) string { return r.ClientID }) {
			client, err := s.clients.Load(ctx, id)
			if errors.Is(err, ErrClientNotFound) {
				continue
			}
			if err != nil {
				return Info{}, err
			}
			clients = append(clients, AuthorizedClient{ClientID: client.ID, ApplicationName: client.ApplicationName})
		}
		return Info{Data: clients}, nil
	}

	exists, err := s.clients.Exists(ctx, params.ClientID)
	if err != nil {
		return Info{}, err
	}
	if !exists {
		return infoError(ErrorCodeUnauthorizedClient), nil
	}
	relations, err := s.relations(ctx, params.Username, params.ClientID)
	if err != nil {
		return Info{}, err
	}
	codes := distinct(relations, func(r relation) string { return r.Code })
	if codes == nil {
		codes = []string{}
	}
	return Info{Data: codes}, nil
}

// Delete revokes everything params.Username granted params.ClientID: codes
// and refresh tokens are deleted, access token sessions closed and the
// relation keys destroyed. It returns the remaining authorized clients.
func (s *Server) Delete(ctx context.Context, params Parameters) Info {
	ctx, span := s.startSpan(ctx, "oauth2.delete")
	defer span.End()

	if validateUsername(params.Username) != nil {
		return infoError(ErrorCodeAccessDenied)
	}
	exists, err := s.clients.Exists(ctx, params.ClientID)
	if err != nil {
		s.logger.Error("Failed to check client", "client_id", params.ClientID, "error", err)
		return infoError(ErrorCodeServerError)
	}
	if !exists {
		return infoError(ErrorCodeUnauthorizedClient)
	}

	count, err := s.revoke(ctx, params.Username, params.ClientID)
	if err != nil {
		s.logger.Error("Failed to revoke authorizations", "client_id", params.ClientID, "error", err)
		return infoError(ErrorCodeServerError)
	}

	if m := s.metrics(); m != nil {
		m.RecordAuthorizationsRevoked(ctx, params.ClientID, count)
	}
	s.audit().LogAuthorizationsRevoked(params.Username, params.ClientID, security.GetClientIP(ctx), count)

	params.ClientID = ""
	return s.Information(ctx, params)
}

func (s *Server) revoke(ctx context.Context, username, clientID string) (int, error) {
	relations, err := s.relations(ctx, username, clientID)
	if err != nil {
		return 0, err
	}

	for _, code := range distinct(relations, func(r relation) string { return r.Code }) {
		if err := s.codes.Delete(ctx, code); err != nil {
			return 0, err
		}
	}
	for _, token := range distinct(relations, func(r relation) string { return r.AccessToken }) {
		if err := s.closeSession(ctx, token); err != nil {
			return 0, err
		}
	}

	for _, rel := range relations {
		if err := s.store.Destroy(ctx, rel.key()); err != nil {
			return 0, fmt.Errorf("failed to destroy relations: %w", err)
		}
	}
	return len(relations), nil
}

// closeSession closes the access token session, running its close
// callbacks. Expired sessions are only removed from the store.
func (s *Server) closeSession(ctx context.Context, token string) error {
	sess, err := s.sessions.Load(ctx, token)
	if errors.Is(err, session.ErrSessionNotFound) {
		return s.sessions.DeleteSession(ctx, token)
	}
	if err != nil {
		return err
	}
	return sess.Close(ctx)
}

// relations returns the parsed relation keys of username, restricted to
// clientID unless it is the wildcard.
func (s *Server) relations(ctx context.Context, username, clientID string) ([]relation, error) {
	pattern := relationKey(username, clientID, storage.Wildcard, storage.Wildcard)
	keys, err := storage.Match(ctx, s.store, pattern)
	if err != nil {
		return nil, err
	}
	out := make([]relation, 0, len(keys))
	for _, key := range keys {
		rel, ok := parseRelationKey(key)
		if !ok || rel.Username != username {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// distinct returns the non-empty values of field in first-seen order.
func distinct(relations []relation, field func(relation) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rel := range relations {
		v := field(rel)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
