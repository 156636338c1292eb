// Package transport contains core.Transport implementations. The in-process
// transport is a loopback fabric suitable for tests and single-process
// deployments; the redis sub-package adapts Redis pub/sub for multi-process
// setups.
package transport
