// Package ratelimit implements the per-client sliding-window admission check
// applied to task creation.
//
// Each key keeps the timestamps of its admissions within the trailing window.
// Keys whose windows have emptied are dropped by Sweep, which Run calls
// periodically, so memory stays proportional to the number of recently
// active clients.
package ratelimit
