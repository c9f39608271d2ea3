// Package server implements the OAuth 2.0 authorization server core: the
// client, user and code entities persisted in a storage.Store, and the grant
// pipeline that turns request Parameters into a response Parameters.
//
// Access tokens are session tokens: a successful token grant opens a new
// session on the injected session.Handler and copies the granted roles and
// their properties onto it, so resource servers authorize a bearer token by
// loading its session and checking its roles.
//
// Entities are stored as hashes:
//
//	oauth2:client:value:<id>        key, type, application_name, redirect_uris, roles, creation_time
//	oauth2:user:value:<username>    key, roles (JSON), creation_time
//	oauth2:code:value:<code>        client_id, username, roles, creation_time
//
// and every issued grant leaves a relation key
//
//	oauth2:authorization:<username>:<client_id>:<code>:<access_token>
//
// used by Information and Delete to enumerate and withdraw what a user has
// authorized.
//
// Example usage:
//
//	srv, err := server.New(store, sessions, server.Config{Logger: logger})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, secret, err := srv.Clients().Create(ctx, server.ClientRegistration{
//	    Type:            server.ClientTypeConfidential,
//	    ApplicationName: "Example",
//	    RedirectURIs:    []string{"https://app.example.com/cb"},
//	    Roles:           []string{"READ"},
//	})
//	resp := srv.Grant(ctx, server.ParseQuery(body), resolver)
package server
