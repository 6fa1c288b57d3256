// Package dashboard serves a small web page and JSON API over the reminder
// service: list, add and delete reminders, plus a health check.
//
// There is no authentication; bind it to a private address.
package dashboard
