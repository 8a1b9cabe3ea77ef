// Package database provides the connection manager, schema bootstrap,
// transaction manager, manager factory, configuration, driver error
// classification and logging used by the repositories, built on top of Bun.
package database
