package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pior/setstream/resp"
)

// errWrongType aborts a transaction when a key holds the wrong kind of value.
var errWrongType = errors.New("wrong type")

const wrongTypeMessage = "Operation against a key holding the wrong kind of value"

type handler struct {
	minArgs int
	maxArgs int // -1 for unbounded
	write   bool
	fn      func(s *Store, tx Tx, args [][]byte) (*resp.Reply, error)
}

var handlers = map[string]handler{
	resp.CmdSAdd:        {minArgs: 2, maxArgs: -1, write: true, fn: (*Store).sadd},
	resp.CmdSRem:        {minArgs: 2, maxArgs: -1, write: true, fn: (*Store).srem},
	resp.CmdSPop:        {minArgs: 1, maxArgs: 1, write: true, fn: (*Store).spop},
	resp.CmdSMove:       {minArgs: 3, maxArgs: 3, write: true, fn: (*Store).smove},
	resp.CmdSCard:       {minArgs: 1, maxArgs: 1, fn: (*Store).scard},
	resp.CmdSIsMember:   {minArgs: 2, maxArgs: 2, fn: (*Store).sismember},
	resp.CmdSInter:      {minArgs: 1, maxArgs: -1, fn: algebra(intersect)},
	resp.CmdSInterStore: {minArgs: 2, maxArgs: -1, write: true, fn: algebraStore(intersect)},
	resp.CmdSUnion:      {minArgs: 1, maxArgs: -1, fn: algebra(union)},
	resp.CmdSUnionStore: {minArgs: 2, maxArgs: -1, write: true, fn: algebraStore(union)},
	resp.CmdSDiff:       {minArgs: 1, maxArgs: -1, fn: algebra(difference)},
	resp.CmdSDiffStore:  {minArgs: 2, maxArgs: -1, write: true, fn: algebraStore(difference)},
	resp.CmdSMembers:    {minArgs: 1, maxArgs: 1, fn: (*Store).smembers},
	resp.CmdSRandMember: {minArgs: 1, maxArgs: 2, fn: (*Store).srandmember},
	resp.CmdPing:        {minArgs: 0, maxArgs: 1, fn: (*Store).ping},
	resp.CmdGet:         {minArgs: 1, maxArgs: 1, fn: (*Store).get},
	resp.CmdSet:         {minArgs: 2, maxArgs: 2, write: true, fn: (*Store).set},
	resp.CmdDel:         {minArgs: 1, maxArgs: -1, write: true, fn: (*Store).del},
}

type Options struct {
	Logger *zerolog.Logger
}

// Store executes set commands against a Backend. It satisfies the executor
// contract of the setstream package, so it can back a BatchCommands directly
// or sit behind a Server.
type Store struct {
	backend Backend
	logger  zerolog.Logger
}

func New(backend Backend, opts Options) *Store {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Store{backend: backend, logger: logger}
}

// Execute runs one request. Command level failures (unknown command, wrong
// arity, wrong type) come back as error replies. A returned error means the
// backend itself failed.
func (s *Store) Execute(ctx context.Context, req *resp.Request) (*resp.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.ToUpper(req.Command)
	h, ok := handlers[name]
	if !ok {
		return resp.Errorf("unknown command '%s'", req.Command), nil
	}
	if len(req.Args) < h.minArgs || (h.maxArgs >= 0 && len(req.Args) > h.maxArgs) {
		return resp.Errorf("wrong number of arguments for '%s' command", strings.ToLower(name)), nil
	}

	var reply *resp.Reply
	run := func(tx Tx) error {
		var err error
		reply, err = h.fn(s, tx, req.Args)
		return err
	}

	var err error
	if h.write {
		err = s.backend.Update(run)
	} else {
		err = s.backend.View(run)
	}

	switch {
	case errors.Is(err, errWrongType):
		return resp.Error(resp.ErrKindWrongType, wrongTypeMessage), nil
	case err != nil:
		s.logger.Error().Err(err).Str("command", name).Msg("backend failure")
		return nil, fmt.Errorf("store: %s: %w", name, err)
	}
	return reply, nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// setKind fails with errWrongType unless key is a set or absent.
func setKind(tx Tx, keys ...[]byte) error {
	for _, key := range keys {
		kind, err := tx.Kind(key)
		if err != nil {
			return err
		}
		if kind == KindString {
			return errWrongType
		}
	}
	return nil
}

func (s *Store) sadd(tx Tx, args [][]byte) (*resp.Reply, error) {
	if err := setKind(tx, args[0]); err != nil {
		return nil, err
	}
	var added int64
	for _, member := range args[1:] {
		ok, err := tx.Add(args[0], member)
		if err != nil {
			return nil, err
		}
		if ok {
			added++
		}
	}
	return resp.Integer(added), nil
}

func (s *Store) srem(tx Tx, args [][]byte) (*resp.Reply, error) {
	if err := setKind(tx, args[0]); err != nil {
		return nil, err
	}
	var removed int64
	for _, member := range args[1:] {
		ok, err := tx.Remove(args[0], member)
		if err != nil {
			return nil, err
		}
		if ok {
			removed++
		}
	}
	return resp.Integer(removed), nil
}

func (s *Store) spop(tx Tx, args [][]byte) (*resp.Reply, error) {
	if err := setKind(tx, args[0]); err != nil {
		return nil, err
	}
	members, err := tx.Members(args[0])
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return resp.NullBulk(), nil
	}
	member := members[rand.IntN(len(members))]
	if _, err := tx.Remove(args[0], member); err != nil {
		return nil, err
	}
	return resp.Bulk(member), nil
}

func (s *Store) smove(tx Tx, args [][]byte) (*resp.Reply, error) {
	src, dst, member := args[0], args[1], args[2]
	if err := setKind(tx, src, dst); err != nil {
		return nil, err
	}
	ok, err := tx.Remove(src, member)
	if err != nil {
		return nil, err
	}
	if !ok {
		return resp.Bool(false), nil
	}
	if _, err := tx.Add(dst, member); err != nil {
		return nil, err
	}
	return resp.Bool(true), nil
}

func (s *Store) scard(tx Tx, args [][]byte) (*resp.Reply, error) {
	if err := setKind(tx, args[0]); err != nil {
		return nil, err
	}
	n, err := tx.Card(args[0])
	if err != nil {
		return nil, err
	}
	return resp.Integer(n), nil
}

func (s *Store) sismember(tx Tx, args [][]byte) (*resp.Reply, error) {
	if err := setKind(tx, args[0]); err != nil {
		return nil, err
	}
	ok, err := tx.IsMember(args[0], args[1])
	if err != nil {
		return nil, err
	}
	return resp.Bool(ok), nil
}

func (s *Store) smembers(tx Tx, args [][]byte) (*resp.Reply, error) {
	if err := setKind(tx, args[0]); err != nil {
		return nil, err
	}
	members, err := tx.Members(args[0])
	if err != nil {
		return nil, err
	}
	return resp.Array(members), nil
}

// srandmember without a count returns one member as a bulk string. A positive
// count returns up to count distinct members; a negative count returns exactly
// -count members, possibly repeated.
func (s *Store) srandmember(tx Tx, args [][]byte) (*resp.Reply, error) {
	if err := setKind(tx, args[0]); err != nil {
		return nil, err
	}

	hasCount := len(args) == 2
	var count int64
	if hasCount {
		n, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return resp.Errorf("value is not an integer or out of range"), nil
		}
		count = n
	}

	members, err := tx.Members(args[0])
	if err != nil {
		return nil, err
	}

	if !hasCount {
		if len(members) == 0 {
			return resp.NullBulk(), nil
		}
		return resp.Bulk(members[rand.IntN(len(members))]), nil
	}

	switch {
	case count == 0 || len(members) == 0:
		return resp.Array([][]byte{}), nil
	case count > 0:
		picked := make([][]byte, 0, min(int(count), len(members)))
		for _, i := range rand.Perm(len(members)) {
			if int64(len(picked)) == count {
				break
			}
			picked = append(picked, members[i])
		}
		return resp.Array(picked), nil
	default:
		picked := make([][]byte, 0, -count)
		for int64(len(picked)) < -count {
			picked = append(picked, members[rand.IntN(len(members))])
		}
		return resp.Array(picked), nil
	}
}

func (s *Store) ping(_ Tx, args [][]byte) (*resp.Reply, error) {
	if len(args) == 1 {
		return resp.Bulk(args[0]), nil
	}
	return resp.Status(resp.StatusPong), nil
}

func (s *Store) get(tx Tx, args [][]byte) (*resp.Reply, error) {
	kind, err := tx.Kind(args[0])
	if err != nil {
		return nil, err
	}
	if kind == KindSet {
		return nil, errWrongType
	}
	value, err := tx.GetString(args[0])
	if err != nil {
		return nil, err
	}
	return resp.Bulk(value), nil
}

func (s *Store) set(tx Tx, args [][]byte) (*resp.Reply, error) {
	if err := tx.PutString(args[0], args[1]); err != nil {
		return nil, err
	}
	return resp.Status(resp.StatusOK), nil
}

func (s *Store) del(tx Tx, args [][]byte) (*resp.Reply, error) {
	var deleted int64
	for _, key := range args {
		ok, err := tx.Delete(key)
		if err != nil {
			return nil, err
		}
		if ok {
			deleted++
		}
	}
	return resp.Integer(deleted), nil
}
