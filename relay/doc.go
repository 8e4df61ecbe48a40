// Package relay implements the local callback rendezvous used to hand
// provider redirect results to blocking waiters.
//
// A waiter registers over a local socket with a correlation state and
// blocks; the HTTP callback surface delivers the matching result through
// the coordinator. Delivery is at-most-once per registration, and a new
// registration for a state cancels and replaces the previous one.
package relay
