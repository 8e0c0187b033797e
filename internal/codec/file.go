package codec

import (
	"bytes"
	"fmt"
)

// ErrCorruptedOrWrongKey is returned by OpenFile when the stored IV
// prefix does not bit-exactly match the session IV.
var ErrCorruptedOrWrongKey = fmt.Errorf("codec: corrupted payload or wrong key")

// SealFile produces the on-disk representation of data: a 16-byte IV
// prefix (the session IV, used purely as an integrity tripwire — not a
// nonce in the AEAD sense, see spec.md Open Question (b)) followed by the
// sealed ciphertext.
func (k SessionKey) SealFile(data []byte) []byte {
	out := make([]byte, 0, IVSize+len(data))
	out = append(out, k.IV[:]...)
	out = append(out, k.SealBytes(data)...)
	return out
}

// OpenFile reverses SealFile. It fails ErrCorruptedOrWrongKey if the
// stored IV prefix doesn't match this session's IV exactly.
func (k SessionKey) OpenFile(raw []byte) ([]byte, error) {
	if len(raw) < IVSize {
		return nil, ErrCorruptedOrWrongKey
	}
	prefix, body := raw[:IVSize], raw[IVSize:]
	if !bytes.Equal(prefix, k.IV[:]) {
		return nil, ErrCorruptedOrWrongKey
	}
	return k.OpenBytes(body), nil
}
