// Package scheduler controls the recurring follow-up scan run by the remote
// scheduler service.
//
// Client is the HTTP implementation of Service. Panel keeps the last known
// schedule and execution log and exposes the load, toggle and trigger
// actions. The schedule itself is never computed locally: after every toggle
// the panel re-fetches it and shows what the service reports.
//
// CronToHuman is the only local interpretation of schedule data. It describes
// expressions with github.com/lnquy/cron and prints anything the descriptor
// rejects verbatim.
package scheduler
