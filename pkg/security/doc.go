/*
Package security seals secrets before strata persists them.

Radosgw client keys end up in the attribute store, and the store may be
shared between nodes. When a secret key file is configured
(--secret-key-file, with ceph.encrypted_data_bags enabled) every persisted
key is sealed with AES-256-GCM:

	enc:<base64(nonce | ciphertext | tag)>

The key file holds either the base64 encoding of 32 random bytes or a
password, which is stretched with SHA-256. Values without the enc: prefix
are plain; Open reports them with ErrNotSealed so callers can accept
secrets written before sealing was turned on.

Generate a key with:

	head -c 32 /dev/urandom | base64 > /etc/strata/secret.key
*/
package security
