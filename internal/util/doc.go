// Package util holds small string helpers shared by the session, server and
// HTTP packages: truncation of secrets for logs, separator-joined lists as
// stored in hash fields, and URL path joining for the configured routes.
package util
