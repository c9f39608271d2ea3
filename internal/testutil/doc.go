// Package testutil provides helpers shared by the package tests: a
// controllable clock, a discarding logger and in-memory stores.
package testutil
