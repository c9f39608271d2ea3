package session

const (
	keyPrefix       = "session:"
	valuePrefix     = keyPrefix + "value:"
	rolesPrefix     = keyPrefix + "roles:"
	fieldToken      = "token"
	fieldUpdateTime = "update_time"

	// placeholderField marks a held role that has no properties yet.
	placeholderField = "0"
)

func valueKey(token string) string {
	return valuePrefix + token
}

func roleKeyPrefix(token string) string {
	return rolesPrefix + token + ":"
}

func roleKey(token, role string) string {
	return roleKeyPrefix(token) + role
}

// recordPattern matches every key belonging to token.
func recordPattern(token string) string {
	return keyPrefix + "*" + token + "*"
}
