package wire

import (
	"fmt"
	"io"
)

// WriteResponse writes one status-token response line: "STATUS message\n".
// An empty message still gets the trailing space dropped for a clean
// "STATUS\n" line.
func WriteResponse(w io.Writer, status, message string) error {
	var err error
	if message == "" {
		_, err = fmt.Fprintf(w, "%s\n", status)
	} else {
		_, err = fmt.Fprintf(w, "%s %s\n", status, message)
	}
	return err
}

// WriteSize writes the "SIZE <n>\n" line that precedes a file download.
func WriteSize(w io.Writer, n int64) error {
	_, err := fmt.Fprintf(w, "SIZE %d\n", n)
	return err
}

// WritePayload writes exactly len(data) raw bytes with no framing of its
// own; the recipient already knows the count from a preceding SIZE or
// UPLOAD_FILE line.
func WritePayload(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}
