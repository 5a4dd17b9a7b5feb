// Package types holds the value types shared by the repository engine:
// pagination arithmetic, filter predicates, bulk results, JSON columns and
// the enum contract.
package types
