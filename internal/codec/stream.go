package codec

// Seal transforms plaintext into ciphertext (or ciphertext back into
// plaintext — the transform is its own inverse) by XORing every byte
// against the session key, cycled modulo the key's length. The result is
// always exactly len(data) bytes: seal is length-preserving and symmetric,
// open(seal(x)) == x for any byte string and any session key. A nil input
// yields nil.
func Seal(key [KeySize]byte, data []byte) []byte {
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// Open reverses Seal. Because the stream transform is XOR-based it is
// identical to Seal; the separate name documents the two directions of
// the seal/open contract at call sites.
func Open(key [KeySize]byte, data []byte) []byte {
	return Seal(key, data)
}

// SealBytes and OpenBytes are convenience wrappers over a SessionKey.
func (k SessionKey) SealBytes(data []byte) []byte { return Seal(k.Key, data) }
func (k SessionKey) OpenBytes(data []byte) []byte { return Open(k.Key, data) }
