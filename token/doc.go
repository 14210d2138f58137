// Package token mints and verifies the signed access and refresh tokens
// issued at the end of a successful login. Both tokens are JWT claim
// bundles over {identity, session, admin flag, issuer, audience, expiry};
// nothing is persisted, so revocation happens by removing the session the
// claims point at.
package token
