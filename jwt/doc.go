// Package jwt issues and verifies the signed session bearer tokens carried
// in the session cookie. Verification failures of any kind collapse into a
// single opaque error so the surface cannot be used as an oracle.
package jwt
