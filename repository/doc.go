// Package repository provides the generic repository engine built on Bun and
// the user, cart and product repositories layered on it.
package repository
