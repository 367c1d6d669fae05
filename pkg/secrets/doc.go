// Package secrets seals short credentials, such as webhook signing secrets,
// before they are persisted.
//
// A Cipher holds one 32 byte master key. Every value is encrypted with
// AES-256-GCM under a key derived with HKDF-SHA256 from the master key and a
// caller supplied scope (typically a tenant id), so a ciphertext copied to
// another tenant's row does not decrypt. Sealed values are text:
//
//	enc:v1:<base64(nonce || ciphertext || tag)>
//
// Values without the prefix are treated as legacy plaintext by Open, which
// lets existing rows be migrated lazily on their next write.
package secrets
