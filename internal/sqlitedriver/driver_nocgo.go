//go:build !cgo

package sqlitedriver

import (
	"database/sql"

	"modernc.org/sqlite"
)

func init() {
	sql.Register(DriverName, &sqlite.Driver{})
}

// EncryptionSupported is false for the pure-Go driver; PRAGMA key is ignored.
const EncryptionSupported = false
