//go:build cgo

package store

import (
	_ "github.com/mattn/go-sqlite3"
)

// driverName selects the cgo sqlite driver when cgo is available.
const driverName = "sqlite3"
