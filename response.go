package setstream

// Response pairs one command with the output the store produced for it.
//
// Exactly one of Output and Err is meaningful: when Err is set the command
// failed on its own (invalid argument, store error reply, undecodable reply)
// and Output holds the zero value.
type Response[C Command, O any] struct {
	Input  C
	Output O
	Err    error
}

// Failed reports whether the command failed.
func (r Response[C, O]) Failed() bool {
	return r.Err != nil
}

// BoolResponse carries a membership or move outcome.
type BoolResponse[C Command] = Response[C, bool]

// NumericResponse carries a cardinality or a count of added, removed or stored members.
type NumericResponse[C Command] = Response[C, int64]

// ValueResponse carries a single member. A nil Output means absent.
type ValueResponse[C Command] = Response[C, []byte]

// MultiValueResponse carries a collection of members. Member order is not stable.
type MultiValueResponse[C Command] = Response[C, [][]byte]
