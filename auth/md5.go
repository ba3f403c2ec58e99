// Package auth implements the two server-side authentication methods the
// state machine's AuthEvent (protocol/events.go) can ask the caller to
// respond to: MD5 and SASL/SCRAM (SPEC_FULL.md §6, §9).
package auth

import (
	"crypto/md5"
	"encoding/hex"
)

// MD5Password computes PostgreSQL's "md5" password-response hash:
// "md5" + hex(md5(hex(md5(password+user)) + salt)).
//
// Grounded bit-exactly on original_source/pagio/base_protocol.py's
// handle_auth_req (specifier==5 branch).
func MD5Password(user, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + user))
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum(append([]byte(innerHex), salt[:]...))
	return "md5" + hex.EncodeToString(outer[:])
}
