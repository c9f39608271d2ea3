package server

import "strings"

const (
	clientPrefix        = "oauth2:client:value:"
	userPrefix          = "oauth2:user:value:"
	codePrefix          = "oauth2:code:value:"
	authorizationPrefix = "oauth2:authorization:"

	fieldKey             = "key"
	fieldType            = "type"
	fieldApplicationName = "application_name"
	fieldRedirectURIs    = "redirect_uris"
	fieldRoles           = "roles"
	fieldCreationTime    = "creation_time"
	fieldClientID        = "client_id"
	fieldUsername        = "username"

	keySeparator = ":"
	// reservedChars may not appear in a key segment: the separator and the
	// glob metacharacters of the store backends.
	reservedChars = keySeparator + "*?[]\\"
	listSep      = ","
	scopeSep     = "+"

	// placeholderValue is the value of every relation key.
	placeholderValue = "0"
)

func clientKey(id string) string {
	return clientPrefix + id
}

func userKey(username string) string {
	return userPrefix + username
}

func codeKey(code string) string {
	return codePrefix + code
}

func relationKey(username, clientID, code, accessToken string) string {
	return authorizationPrefix + strings.Join([]string{username, clientID, code, accessToken}, keySeparator)
}

// relation is a parsed relation key.
type relation struct {
	Username    string
	ClientID    string
	Code        string
	AccessToken string
}

func (r relation) key() string {
	return relationKey(r.Username, r.ClientID, r.Code, r.AccessToken)
}

func parseRelationKey(key string) (relation, bool) {
	rest, ok := strings.CutPrefix(key, authorizationPrefix)
	if !ok {
		return relation{}, false
	}
	parts := strings.Split(rest, keySeparator)
	if len(parts) != 4 {
		return relation{}, false
	}
	return relation{Username: parts[0], ClientID: parts[1], Code: parts[2], AccessToken: parts[3]}, true
}
