// Package repository holds what the bun-backed repositories share.
package repository

import "errors"

// ErrNotFound is returned when a row is missing or belongs to another tenant.
var ErrNotFound = errors.New("record not found")
