//go:build cgo

package sqlitedriver

import (
	_ "github.com/mutecomm/go-sqlcipher/v4" // registers "sqlite3"
)

// EncryptionSupported is true when the SQLCipher driver is linked in.
const EncryptionSupported = true
