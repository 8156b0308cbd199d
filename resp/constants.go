package resp

// Kind identifies the RESP2 type of a Reply.
type Kind byte

// Reply kinds, named after their wire prefix.
const (
	KindStatus  Kind = '+'
	KindError   Kind = '-'
	KindInteger Kind = ':'
	KindBulk    Kind = '$'
	KindArray   Kind = '*'
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulk:
		return "bulk"
	case KindArray:
		return "array"
	default:
		return "unknown(" + string(rune(k)) + ")"
	}
}

// Protocol delimiters
const (
	// CRLF terminates every RESP line
	CRLF = "\r\n"
)

// Set commands understood by the store.
const (
	CmdSAdd        = "SADD"
	CmdSRem        = "SREM"
	CmdSPop        = "SPOP"
	CmdSMove       = "SMOVE"
	CmdSCard       = "SCARD"
	CmdSIsMember   = "SISMEMBER"
	CmdSInter      = "SINTER"
	CmdSInterStore = "SINTERSTORE"
	CmdSUnion      = "SUNION"
	CmdSUnionStore = "SUNIONSTORE"
	CmdSDiff       = "SDIFF"
	CmdSDiffStore  = "SDIFFSTORE"
	CmdSMembers    = "SMEMBERS"
	CmdSRandMember = "SRANDMEMBER"
)

// Auxiliary commands.
const (
	CmdPing = "PING"
	CmdGet  = "GET"
	CmdSet  = "SET"
	CmdDel  = "DEL"
)

// Well-known status payloads
const (
	StatusOK   = "OK"
	StatusPong = "PONG"
)

// Error kinds used as the first word of error replies.
const (
	ErrKindGeneric   = "ERR"
	ErrKindWrongType = "WRONGTYPE"
	ErrKindCrossSlot = "CROSSSLOT"
)

// Protocol limits
const (
	// MaxBulkLength bounds a single bulk string (512MB, same as Redis)
	MaxBulkLength = 512 * 1024 * 1024

	// MaxArrayLength bounds the element count of an array frame
	MaxArrayLength = 1024 * 1024
)

// RequestLimits bounds what a server accepts in one request frame.
type RequestLimits struct {
	MaxArgs       int // including the command name
	MaxBulkLength int
}

// DefaultRequestLimits is used by ReadRequest.
var DefaultRequestLimits = RequestLimits{
	MaxArgs:       64 * 1024,
	MaxBulkLength: 16 * 1024 * 1024,
}
