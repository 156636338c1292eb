// Package scheduler drives periodic memory consolidation. A cron runner
// triggers consolidation passes at a fixed interval; overlapping passes are
// skipped, and a failing pass latches the scheduler into an error state that
// must be reset explicitly before ticks resume.
package scheduler
