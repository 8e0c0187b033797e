package codec

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func handshakePair(t *testing.T) (SessionKey, SessionKey) {
	t.Helper()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	type result struct {
		key SessionKey
		err error
	}
	serverDone := make(chan result, 1)
	go func() {
		k, err := ServerHandshake(server)
		serverDone <- result{k, err}
	}()

	clientKey, err := ClientHandshake(client)
	require.NoError(t, err)

	srvResult := <-serverDone
	require.NoError(t, srvResult.err)
	return clientKey, srvResult.key
}

func TestHandshakeDerivesMatchingSessionKey(t *testing.T) {
	clientKey, serverKey := handshakePair(t)
	require.Equal(t, clientKey.Key, serverKey.Key)
	require.Equal(t, clientKey.IV, serverKey.IV)
}

func TestSealOpenIsLengthPreservingAndSymmetric(t *testing.T) {
	clientKey, _ := handshakePair(t)

	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("hello"),
		fillBytes(257),
	}
	for _, b := range cases {
		sealed := clientKey.SealBytes(b)
		require.Len(t, sealed, len(b))
		opened := clientKey.OpenBytes(sealed)
		require.Equal(t, b, opened)
	}
}

func TestFileFormatRoundTripsAndDetectsWrongKey(t *testing.T) {
	clientKey, serverKey := handshakePair(t)
	require.Equal(t, clientKey, serverKey)

	payload := []byte("this is the file content")
	raw := clientKey.SealFile(payload)

	back, err := serverKey.OpenFile(raw)
	require.NoError(t, err)
	require.Equal(t, payload, back)

	otherKey, _ := handshakePair(t)
	_, err = otherKey.OpenFile(raw)
	require.ErrorIs(t, err, ErrCorruptedOrWrongKey)
}

func TestSessionKeyReferenceRoundTrips(t *testing.T) {
	clientKey, _ := handshakePair(t)

	ref := clientKey.Reference()
	recovered, err := ParseReference(ref)
	require.NoError(t, err)
	require.Equal(t, clientKey, recovered)

	_, err = ParseReference("not-hex")
	require.Error(t, err)
}

func fillBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
