// Package amcp implements a client for the CasparCG AMCP text protocol.
//
// AMCP is a line-oriented request/response protocol over TCP. Every command
// is a single CRLF-terminated line; the server answers with a status line
// and, for some codes, one payload line:
//
//	202 PLAY OK                     success, no payload
//	201 INFO OK / 200 INFO OK       success, one payload line follows
//	400 ERROR                       rejected, the offending command is echoed
//	4xx / 5xx                       rejected, no further lines
//
// The server does not pipeline, so the client keeps exactly one request in
// flight. Query calls from multiple goroutines are serialised by a mutex and
// simply wait for each other.
//
// # Errors
//
// Failures are reported as one of two types:
//
//   - *ConnectionError: the link is down or the stream lost framing. The
//     connection is dropped and the next Query reconnects. The failed
//     command was not confirmed and the caller decides whether to retry.
//   - *ProtocolError: the server understood and rejected the command. The
//     connection stays up and retrying the same command is pointless.
//
// # Usage
//
//	client := amcp.New(amcp.Config{Host: "caspar01", Port: 5250})
//	defer client.Close()
//
//	resp, err := client.Query(ctx, "LOADBG 1-10 nebula-42 AUTO")
//	var perr *amcp.ProtocolError
//	if errors.As(err, &perr) {
//	    log.Warn("rejected", "code", perr.Code)
//	}
package amcp
