package state

import "errors"

// Error taxonomy per the error handling design: transport and protocol
// errors terminate or are recovered at the session boundary, scan errors
// at the job boundary, and resource-exhaustion errors keep the listener
// healthy while rejecting the one offending request.
var (
	// ErrTransport marks a read/write/accept failure. The affected session
	// always terminates; there is no retry.
	ErrTransport = errors.New("transport error")

	// ErrProtocol marks a malformed command or a size mismatch in a framed
	// request. The session replies ERROR and stays open.
	ErrProtocol = errors.New("protocol error")

	// ErrResourceExhausted marks no free client slot or a full job table.
	// The listener stays healthy; only the offending request is rejected.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrScan marks a scanner adapter failure. The job transitions to
	// ERROR with a descriptive verdict; the session is unaffected.
	ErrScan = errors.New("scan error")

	// ErrCorruptedOrWrongKey marks an IV mismatch or decrypt failure.
	// The session terminates after one ERROR response.
	ErrCorruptedOrWrongKey = errors.New("corrupted or wrong key")

	// ErrIO marks a filesystem failure during store/load. The caller
	// replies ERROR and cleans up any partial file.
	ErrIO = errors.New("io error")

	// ErrNotFound marks an unknown job id or missing download artifact.
	ErrNotFound = errors.New("not found")

	// ErrAdminBusy marks a second concurrent admin connection attempt.
	ErrAdminBusy = errors.New("admin already connected")
)
