package wire

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/ocx/avscan/internal/state"
	"github.com/stretchr/testify/require"
)

func TestParseLineSplitsVerbAndRest(t *testing.T) {
	l, err := ParseLine("UPLOAD_FILE hello.txt 5")
	require.NoError(t, err)
	require.Equal(t, "UPLOAD_FILE", l.Verb)
	require.Equal(t, "hello.txt 5", l.Rest)
	require.Equal(t, []string{"hello.txt", "5"}, l.Fields())
}

func TestParseLineBareVerb(t *testing.T) {
	l, err := ParseLine("REGISTER_CLIENT")
	require.NoError(t, err)
	require.Equal(t, "REGISTER_CLIENT", l.Verb)
	require.Equal(t, "", l.Rest)
}

func TestParseLineEmptyIsProtocolError(t *testing.T) {
	_, err := ParseLine("")
	require.ErrorIs(t, err, state.ErrProtocol)
}

func TestReadLineStripsTerminator(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("GET_STATS\r\n"))
	line, err := ReadLine(r)
	require.NoError(t, err)
	require.Equal(t, "GET_STATS", line)
}

func TestReadExactlyFullPayload(t *testing.T) {
	r := strings.NewReader("hello")
	buf, err := ReadExactly(r, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), buf)
}

func TestReadExactlyShortPayloadReportsUnexpectedEOF(t *testing.T) {
	r := strings.NewReader("hi")
	buf, err := ReadExactly(r, 5)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, []byte("hi"), buf)
}

func TestWriteResponseFormatsStatusLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, StatusOK, "Client registered"))
	require.Equal(t, "OK Client registered\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteResponse(&buf, StatusNotFound, ""))
	require.Equal(t, "NOT_FOUND\n", buf.String())
}

func TestWriteSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSize(&buf, 42))
	require.Equal(t, "SIZE 42\n", buf.String())
}
