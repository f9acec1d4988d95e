// Package plan is the scheduling engine: it assigns calendar dates to a
// backlog of task records under finite daily capacity.
//
// A run is made of:
//   - a Calendar (weekday capacity table + buffer fraction) that only grows
//   - the Backoff walk that turns "N hours before date D" into a start date
//   - the SequenceScheduler for ordered chains inside one container
//   - the PriorityScheduler for independent tasks
//   - a Budget that bounds every loop of the run
//
// Everything is synchronous and single-threaded. The calendar is owned by one
// Planner.Plan call and handed to both schedulers in a fixed order (sequence
// groups first, then priority tasks) so later decisions see earlier ones.
//
// The engine never reads or writes documents. Callers pass typed records in
// and get a Result back; persisting the dates is their job.
package plan
