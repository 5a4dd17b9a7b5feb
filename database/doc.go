// Package database provides connection management, driver error
// classification, query hooks, logging, health checks and table bootstrap
// for registered models, built on top of Bun.
package database
