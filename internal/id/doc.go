// Package id provides identifier generation and checks for stored records.
//
// Generated identifiers are UUID version 7: time-ordered, so records sort
// roughly by creation, and random in their low bits. Callers may also supply
// their own identifiers (for example when importing a file store), which
// must pass Valid.
package id
