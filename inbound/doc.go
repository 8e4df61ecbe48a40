// Package inbound is the HTTP surface for provider redirect callbacks.
//
// The far end of a callback is a browser following a redirect, so both
// terminal outcomes render human-readable pages: one for a delivered
// result, one when no waiter is registered for the state.
package inbound
