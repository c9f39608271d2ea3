// Package session manages server-side sessions stored in a storage.Store.
//
// A session is identified by a random alphanumeric token. Its record lives in
// the hash "session:value:<token>" with the fields "token" and "update_time"
// (unix seconds); every role the session holds is a hash
// "session:roles:<token>:<role>" whose fields are the role properties. The
// store is the source of truth: a Session value is a handle that can be
// reloaded by token at any time.
//
// Lifecycle:
//
//	s := handler.New()
//	if err := s.Open(ctx); err != nil { ... }     // fresh unique token
//	ok, err := s.Roles().Add(ctx, "admin")         // touches the session
//	err = s.Roles().SetProperty(ctx, "admin", "username", "alice")
//	...
//	err = s.Close(ctx)                             // callbacks, roles, record
//
// A session is valid while now - update_time <= timeout. Once it has been
// invalid for longer than the garbage grace window, the background collector
// started with Handler.Start closes it.
package session
