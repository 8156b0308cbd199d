// Package resp provides a low-level implementation of the RESP2 wire protocol
// used to talk to a remote set store.
//
// The package is a foundation for higher-level clients. It only serializes and
// parses; it does not manage connections, route keys or interpret payloads.
// Keys and values are opaque byte slices end to end.
//
// # Core Types
//
// Request and Reply are pure data containers:
//
//   - Request: a command name followed by binary-safe arguments
//   - Reply: one of status, error, integer, bulk string or array
//
// # Serialization and Parsing
//
// Client side:
//
//	req := resp.NewRequest(resp.CmdSAdd, []byte("s1"), []byte("a"), []byte("b"))
//	if err := resp.WriteRequest(w, req); err != nil {
//	    return err
//	}
//	reply, err := resp.ReadReply(r)
//	if err != nil {
//	    if resp.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
//	if reply.HasError() {
//	    // store-side failure for this request only
//	}
//
// Server side uses ReadRequest and WriteReply with the same framing.
//
// # Error Handling
//
// Error replies from the store are not Go errors: they are carried on
// Reply.Err as *ServerError and the connection stays usable. Go errors
// returned by ReadReply are I/O or parse failures:
//
//   - ServerError: store rejected this request, connection can be REUSED
//   - ParseError: malformed reply, CLOSE connection
//   - ConnectionError: network/I/O error, connection already broken
//   - ProtocolError: malformed request seen by a server, CLOSE connection
//
// # Thread Safety
//
// Request and Reply are not safe for concurrent mutation. WriteRequest and
// ReadReply are safe as long as each goroutine uses its own reader/writer.
package resp
