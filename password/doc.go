// Package password implements argon2id hashing and verification for every
// secret the auth core stores at rest: account passwords, refresh tokens,
// password-reset tickets and short-lived one-time codes.
package password
