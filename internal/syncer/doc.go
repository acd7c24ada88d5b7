// Package syncer reconciles the local database with the backend.
//
// There is one engine per resource:
//
//   - TaskEngine and GoalEngine push records that have no backend id yet and
//     pull backend records that are not known locally.
//   - TimerEngine additionally applies last-writer-wins updates on pull and
//     offers a read-only Merge used to build the startup view.
//
// Engines are invoked on demand (refresh, login completed); nothing here runs
// in the background. Every operation returns a result object rather than an
// error: per-record failures are collected and the batch continues. When the
// auth gate reports signed out, or no token is available, the operation
// returns immediately with ErrAuthenticationRequired in its errors and writes
// nothing.
//
// Concurrent invocations of the same operation on the same engine share one
// execution and one result.
package syncer
