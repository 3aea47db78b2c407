//go:build !sqlite_vec

package store

import (
	_ "modernc.org/sqlite"
)

// driverName selects the pure-Go SQLite driver. Builds tagged sqlite_vec
// switch to the cgo driver with the vec0 extension for ANN search.
const driverName = "sqlite"

// annAvailable reports whether the vec0 extension is compiled in.
const annAvailable = false
