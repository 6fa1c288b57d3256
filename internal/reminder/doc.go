// Package reminder holds the reminder model and the logic that drives it:
// compiling a reminder into a recurrence, the fire-time lifecycle (deliver,
// count, retire), and the command operations (create, list, cancel,
// set-timezone) shared by the Telegram router and the dashboard.
//
// The package owns no infrastructure. Storage, scheduling and delivery are
// consumed through the Store, Scheduler and Deliverer interfaces.
package reminder
