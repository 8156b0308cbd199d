package resp

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"sync"
)

// Buffer pool for building frames on non-buffered writers
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 256))
	},
}

func getBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	// Oversized buffers are dropped so one large batch doesn't pin memory
	if buf.Cap() > 64*1024 {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// frameWriter is satisfied by both *bufio.Writer and *bytes.Buffer.
type frameWriter interface {
	io.Writer
	io.StringWriter
	io.ByteWriter
}

// WriteRequest serializes a Request as an array of bulk strings and writes it to w.
// Format: *<n>\r\n$<len>\r\n<command>\r\n($<len>\r\n<arg>\r\n)*
//
// When w is a *bufio.Writer the frame is written into its buffer and NOT flushed,
// so several requests can be pipelined before a single Flush.
// Other writers receive the whole frame in a single Write call.
func WriteRequest(w io.Writer, req *Request) error {
	if bw, ok := w.(*bufio.Writer); ok {
		return writeRequest(bw, req)
	}

	buf := getBuffer()
	defer putBuffer(buf)

	if err := writeRequest(buf, req); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func writeRequest(w frameWriter, req *Request) error {
	if req.Command == "" {
		return &ProtocolError{Message: "empty command"}
	}
	for _, arg := range req.Args {
		if arg == nil {
			return &ProtocolError{Message: "nil argument for " + req.Command}
		}
	}

	writeHeader(w, KindArray, len(req.Args)+1)
	writeBulk(w, []byte(req.Command))
	for _, arg := range req.Args {
		writeBulk(w, arg)
	}
	return nil
}

// WriteReply serializes a Reply and writes it to w.
// Same buffering rules as WriteRequest.
func WriteReply(w io.Writer, reply *Reply) error {
	if bw, ok := w.(*bufio.Writer); ok {
		return writeReply(bw, reply)
	}

	buf := getBuffer()
	defer putBuffer(buf)

	if err := writeReply(buf, reply); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func writeReply(w frameWriter, reply *Reply) error {
	switch reply.Kind {
	case KindStatus:
		w.WriteByte(byte(KindStatus))
		w.Write(reply.Str)
		w.WriteString(CRLF)

	case KindError:
		msg := "ERR"
		if reply.Err != nil {
			msg = reply.Err.Error()
		}
		w.WriteByte(byte(KindError))
		w.WriteString(msg)
		w.WriteString(CRLF)

	case KindInteger:
		w.WriteByte(byte(KindInteger))
		w.WriteString(strconv.FormatInt(reply.Int, 10))
		w.WriteString(CRLF)

	case KindBulk:
		if reply.Null {
			writeHeader(w, KindBulk, -1)
			return nil
		}
		writeBulk(w, reply.Str)

	case KindArray:
		if reply.Null {
			writeHeader(w, KindArray, -1)
			return nil
		}
		writeHeader(w, KindArray, len(reply.Elems))
		for _, elem := range reply.Elems {
			if err := writeReply(w, elem); err != nil {
				return err
			}
		}

	default:
		return &ProtocolError{Message: "cannot write reply of kind " + reply.Kind.String()}
	}
	return nil
}

func writeHeader(w frameWriter, kind Kind, n int) {
	w.WriteByte(byte(kind))
	w.WriteString(strconv.Itoa(n))
	w.WriteString(CRLF)
}

func writeBulk(w frameWriter, b []byte) {
	writeHeader(w, KindBulk, len(b))
	w.Write(b)
	w.WriteString(CRLF)
}
