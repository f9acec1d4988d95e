// Package trigger runs the planning job on a schedule.
//
// A schedule is either a cron expression (robfig/cron, seconds optional) or a
// fixed interval. Runs never overlap: a tick that fires while the previous
// run is still going is skipped and logged.
package trigger
