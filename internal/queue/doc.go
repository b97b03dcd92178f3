// Package queue converts several inputs one after another with the same
// parameters. Processing stops at the first item that does not complete.
package queue
