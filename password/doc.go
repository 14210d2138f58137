// Package password provides argon2id hashing and verification using the
// PHC string format. The cost parameters are configuration, with floors
// that keep the effective work factor well above the minimum the engine
// promises (≈2^10 iterations equivalent).
package password
