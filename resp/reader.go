package resp

import (
	"bufio"
	"bytes"
	"io"
	"slices"
	"strconv"
)

var crlfBytes = []byte(CRLF)

// ReadReply reads and parses a single reply from r.
//
// Error replies from the store are returned as Reply.Err (not as Go error).
// The caller should check Reply.HasError().
//
// Go errors returned indicate I/O or parsing failures:
//   - ConnectionError: read failed (wraps io.EOF when the peer closed)
//   - ParseError: malformed reply, connection should be closed
func ReadReply(r *bufio.Reader) (*Reply, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, &ParseError{Message: "empty reply line"}
	}

	kind := Kind(line[0])
	payload := line[1:]

	switch kind {
	case KindStatus:
		return &Reply{Kind: KindStatus, Str: bytes.Clone(payload)}, nil

	case KindError:
		return &Reply{Kind: KindError, Err: parseServerError(payload)}, nil

	case KindInteger:
		n, err := strconv.ParseInt(string(payload), 10, 64)
		if err != nil {
			return nil, &ParseError{Message: "invalid integer reply", Err: err}
		}
		return &Reply{Kind: KindInteger, Int: n}, nil

	case KindBulk:
		n, err := parseLength(payload, MaxBulkLength)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return NullBulk(), nil
		}
		data, err := readBulkData(r, n)
		if err != nil {
			return nil, err
		}
		return &Reply{Kind: KindBulk, Str: data}, nil

	case KindArray:
		n, err := parseLength(payload, MaxArrayLength)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return &Reply{Kind: KindArray, Null: true}, nil
		}
		elems := make([]*Reply, n)
		for i := range elems {
			elems[i], err = ReadReply(r)
			if err != nil {
				return nil, err
			}
		}
		return &Reply{Kind: KindArray, Elems: elems}, nil

	default:
		return nil, &ParseError{Message: "unknown reply prefix " + strconv.QuoteRune(rune(kind))}
	}
}

// ReadRequest reads a request frame (array of bulk strings) from r with
// DefaultRequestLimits. Used by servers. Returns ConnectionError wrapping
// io.EOF when the peer closed the connection between requests.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	return ReadRequestLimits(r, DefaultRequestLimits)
}

// ReadRequestLimits is ReadRequest with explicit limits. A frame over the
// limits is a ProtocolError. Memory grows with the bytes actually received,
// not with the lengths the peer announces.
func ReadRequestLimits(r *bufio.Reader, limits RequestLimits) (*Request, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || Kind(line[0]) != KindArray {
		return nil, &ProtocolError{Message: "expected array frame"}
	}

	n, err := parseLength(line[1:], MaxArrayLength)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, &ProtocolError{Message: "empty request"}
	}
	if n > limits.MaxArgs {
		return nil, &ProtocolError{Message: "too many arguments"}
	}

	parts := make([][]byte, 0, min(n, 16))
	for range n {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 || Kind(line[0]) != KindBulk {
			return nil, &ProtocolError{Message: "expected bulk string argument"}
		}
		size, err := parseLength(line[1:], MaxBulkLength)
		if err != nil {
			return nil, err
		}
		if size < 0 {
			return nil, &ProtocolError{Message: "null bulk string argument"}
		}
		if size > limits.MaxBulkLength {
			return nil, &ProtocolError{Message: "invalid bulk length"}
		}
		part, err := readBulkData(r, size)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	return &Request{Command: string(parts[0]), Args: parts[1:]}, nil
}

// readLine returns the next line without its CRLF terminator.
// The returned slice is only valid until the next read on r.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		// Line exceeds buffer, fall back to ReadBytes (allocates)
		var rest []byte
		rest, err = r.ReadBytes('\n')
		line = append(bytes.Clone(line), rest...)
	}
	if err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	if !bytes.HasSuffix(line, crlfBytes) {
		return nil, &ParseError{Message: "line not terminated by CRLF"}
	}
	return line[:len(line)-2], nil
}

func parseLength(b []byte, limit int) (int, error) {
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, &ParseError{Message: "invalid length", Err: err}
	}
	if n < -1 {
		return 0, &ParseError{Message: "negative length"}
	}
	if n > limit {
		return 0, &ParseError{Message: "length exceeds limit"}
	}
	return n, nil
}

// bulkChunk is the read size for bulk strings too large to trust upfront.
const bulkChunk = 64 * 1024

func readBulkData(r *bufio.Reader, n int) ([]byte, error) {
	// data + CRLF
	total := n + 2
	data := make([]byte, 0, min(total, bulkChunk))
	for len(data) < total {
		chunk := min(total-len(data), bulkChunk)
		data = slices.Grow(data, chunk)
		read, err := io.ReadFull(r, data[len(data):len(data)+chunk])
		data = data[:len(data)+read]
		if err != nil {
			return nil, &ParseError{Message: "failed to read bulk data", Err: err}
		}
	}
	if !bytes.HasSuffix(data, crlfBytes) {
		return nil, &ParseError{Message: "invalid bulk terminator"}
	}
	return data[:n:n], nil
}

// parseServerError splits "WRONGTYPE Operation against ..." into kind and message.
// The kind is only recognized when the first word is upper case.
func parseServerError(payload []byte) *ServerError {
	word, rest, found := bytes.Cut(payload, []byte(" "))
	if len(word) > 0 && isUpper(word) {
		if !found {
			return &ServerError{Kind: string(word)}
		}
		return &ServerError{Kind: string(word), Message: string(rest)}
	}
	return &ServerError{Message: string(payload)}
}

func isUpper(b []byte) bool {
	for _, c := range b {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
