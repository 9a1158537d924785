// Package jobs tracks the lifecycle of analysis jobs, at most one active job per
// analysis type.
//
// All transitions go through Reduce, a pure function of (State, Action). Tracker
// wraps the reducer with locking, logging and metrics. A job that reaches a terminal
// status stays visible for exactly one read (GetStatus or Snapshot) and is then
// dropped from the active set.
package jobs
