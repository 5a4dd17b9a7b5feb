// Package repository provides the generic persistence engine every entity
// repository is built from: paginated reads, single and bulk writes,
// optimistic concurrency, soft delete, audit events, transactions and a
// closed error taxonomy, built on Bun.
package repository
