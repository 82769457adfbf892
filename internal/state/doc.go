// Package state holds the current alert for each vehicle component and the
// append-only history of every alert ever generated.
package state
