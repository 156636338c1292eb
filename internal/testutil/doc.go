// Package testutil provides fluent builders for constructing events and
// memory records in tests. Chain only the parts a test needs; sensible
// defaults are applied for the rest.
package testutil
