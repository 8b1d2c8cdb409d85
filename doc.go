// Package authkit is the authentication and session-security core of the
// Teamdeck dashboard. It covers password credentials (argon2id), signed
// bearer sessions with rotating refresh tokens, two-factor login over
// delivered codes and authenticator apps, account lockout after repeated
// failures, registration and password reset.
//
// Durable records live in a relational store behind the storage.Store
// interface; pending two-factor challenges live in Redis. An Engine is
// assembled through the Builder:
//
//	engine, err := authkit.New().
//		WithConfig(cfg).
//		WithStore(store).
//		WithRedis(rdb).
//		WithCodeSender(mailer).
//		Build()
//
// All exported Engine methods are safe for concurrent use. Close drains the
// asynchronous audit dispatcher; the store and Redis client belong to the
// caller.
package authkit
