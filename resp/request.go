package resp

// Request represents a RESP request.
// This is a low-level container for request data without serialization logic.
//
// On the wire a request is an array of bulk strings: the command name
// followed by Args. Args are opaque and sent byte for byte.
type Request struct {
	// Command is the command name, e.g. SADD
	Command string

	// Args are the command arguments (keys, members, counts)
	Args [][]byte
}

// NewRequest creates a new request.
//
// Usage:
//
//	req := NewRequest(CmdSAdd, key, member1, member2)
//	req = NewRequest(CmdSMembers, key)
//	req = NewRequest(CmdPing)
func NewRequest(cmd string, args ...[]byte) *Request {
	return &Request{
		Command: cmd,
		Args:    args,
	}
}

// Key returns the first argument, used for server selection.
// Returns nil for commands without arguments.
func (r *Request) Key() []byte {
	if len(r.Args) == 0 {
		return nil
	}
	return r.Args[0]
}

// Keys returns the arguments that name keys. A router must send every one
// of them to the same server.
func (r *Request) Keys() [][]byte {
	switch r.Command {
	case CmdSMove:
		return r.Args[:min(len(r.Args), 2)]
	case CmdSInter, CmdSUnion, CmdSDiff, CmdSInterStore, CmdSUnionStore, CmdSDiffStore, CmdDel:
		return r.Args
	}
	if len(r.Args) == 0 {
		return nil
	}
	return r.Args[:1]
}

// AddArg appends an argument and returns the request for chaining.
func (r *Request) AddArg(arg []byte) *Request {
	r.Args = append(r.Args, arg)
	return r
}

// AddArgs appends arguments and returns the request for chaining.
func (r *Request) AddArgs(args ...[]byte) *Request {
	r.Args = append(r.Args, args...)
	return r
}
