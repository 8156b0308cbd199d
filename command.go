package setstream

import (
	"bytes"
	"strconv"

	"github.com/pior/setstream/resp"
)

// Command is an immutable descriptor of one set operation.
//
// Commands are built in two steps: an entry point captures the operation's
// own parameters (values, count), then an apply method (To, From, Of, StoreAt)
// binds the key(s). Apply methods return a new command and never modify the
// receiver, so a partially built command can be shared and reused.
//
// Every byte slice handed to a command is copied. Slices returned by getters
// belong to the command and must not be modified.
//
// Entry points and apply methods accept nil and never fail. A nil key, value
// or destination is reported by Validate, which the batch runs on submission:
// the command then gets a Response with an error wrapping ErrInvalidArgument
// and is not sent.
type Command interface {
	// Validate reports a missing required field. The returned error wraps
	// ErrInvalidArgument.
	Validate() error
}

func cloneAll(items [][]byte) [][]byte {
	if items == nil {
		return nil
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = bytes.Clone(item)
	}
	return out
}

func requireKey(field string, key []byte) error {
	if key == nil {
		return missing(field)
	}
	return nil
}

func requireAll(field string, items [][]byte) error {
	if len(items) == 0 {
		return empty(field)
	}
	for i, item := range items {
		if item == nil {
			return missing(field + "[" + strconv.Itoa(i) + "]")
		}
	}
	return nil
}

// KeyCommand addresses a single key without further parameters.
// Used by SPOP, SCARD and SMEMBERS.
type KeyCommand struct {
	key []byte
}

// NewKeyCommand creates a command for key.
func NewKeyCommand(key []byte) KeyCommand {
	return KeyCommand{key: bytes.Clone(key)}
}

func (c KeyCommand) Key() []byte { return c.key }

func (c KeyCommand) Validate() error {
	return requireKey("key", c.key)
}

func (c KeyCommand) request(cmd string) *resp.Request {
	return resp.NewRequest(cmd, c.key)
}

// SAddCommand holds SADD parameters.
type SAddCommand struct {
	key    []byte
	values [][]byte
}

// SAddValue creates an SADD command for a single value.
func SAddValue(value []byte) SAddCommand {
	return SAddValues(value)
}

// SAddValues creates an SADD command for values.
func SAddValues(values ...[]byte) SAddCommand {
	return SAddCommand{values: cloneAll(values)}
}

// To applies the key. Returns a new command with all previously configured properties.
func (c SAddCommand) To(key []byte) SAddCommand {
	c.key = bytes.Clone(key)
	return c
}

func (c SAddCommand) Key() []byte      { return c.key }
func (c SAddCommand) Values() [][]byte { return c.values }

func (c SAddCommand) Validate() error {
	if err := requireKey("key", c.key); err != nil {
		return err
	}
	return requireAll("values", c.values)
}

func (c SAddCommand) request() *resp.Request {
	return resp.NewRequest(resp.CmdSAdd, c.key).AddArgs(c.values...)
}

// SRemCommand holds SREM parameters.
type SRemCommand struct {
	key    []byte
	values [][]byte
}

// SRemValue creates an SREM command for a single value.
func SRemValue(value []byte) SRemCommand {
	return SRemValues(value)
}

// SRemValues creates an SREM command for values.
func SRemValues(values ...[]byte) SRemCommand {
	return SRemCommand{values: cloneAll(values)}
}

// From applies the key. Returns a new command with all previously configured properties.
func (c SRemCommand) From(key []byte) SRemCommand {
	c.key = bytes.Clone(key)
	return c
}

func (c SRemCommand) Key() []byte      { return c.key }
func (c SRemCommand) Values() [][]byte { return c.values }

func (c SRemCommand) Validate() error {
	if err := requireKey("key", c.key); err != nil {
		return err
	}
	return requireAll("values", c.values)
}

func (c SRemCommand) request() *resp.Request {
	return resp.NewRequest(resp.CmdSRem, c.key).AddArgs(c.values...)
}

// SMoveCommand holds SMOVE parameters. Both From and To must be applied,
// in either order.
type SMoveCommand struct {
	key         []byte
	destination []byte
	value       []byte
}

// SMoveValue creates an SMOVE command for value.
func SMoveValue(value []byte) SMoveCommand {
	return SMoveCommand{value: bytes.Clone(value)}
}

// From applies the source key.
func (c SMoveCommand) From(source []byte) SMoveCommand {
	c.key = bytes.Clone(source)
	return c
}

// To applies the destination key.
func (c SMoveCommand) To(destination []byte) SMoveCommand {
	c.destination = bytes.Clone(destination)
	return c
}

// Key returns the source key.
func (c SMoveCommand) Key() []byte         { return c.key }
func (c SMoveCommand) Destination() []byte { return c.destination }
func (c SMoveCommand) Value() []byte       { return c.value }

func (c SMoveCommand) Validate() error {
	if err := requireKey("source", c.key); err != nil {
		return err
	}
	if err := requireKey("destination", c.destination); err != nil {
		return err
	}
	return requireKey("value", c.value)
}

func (c SMoveCommand) request() *resp.Request {
	return resp.NewRequest(resp.CmdSMove, c.key, c.destination, c.value)
}

// SIsMemberCommand holds SISMEMBER parameters.
type SIsMemberCommand struct {
	key   []byte
	value []byte
}

// SIsMemberValue creates an SISMEMBER command for value.
func SIsMemberValue(value []byte) SIsMemberCommand {
	return SIsMemberCommand{value: bytes.Clone(value)}
}

// Of applies the key of the set to test.
func (c SIsMemberCommand) Of(key []byte) SIsMemberCommand {
	c.key = bytes.Clone(key)
	return c
}

func (c SIsMemberCommand) Key() []byte   { return c.key }
func (c SIsMemberCommand) Value() []byte { return c.value }

func (c SIsMemberCommand) Validate() error {
	if err := requireKey("key", c.key); err != nil {
		return err
	}
	return requireKey("value", c.value)
}

func (c SIsMemberCommand) request() *resp.Request {
	return resp.NewRequest(resp.CmdSIsMember, c.key, c.value)
}

// multiKeyCommand is shared by the set-algebra commands. There is no primary
// key: all operand keys are equal.
type multiKeyCommand struct {
	keys [][]byte
}

func newMultiKey(keys [][]byte) multiKeyCommand {
	return multiKeyCommand{keys: cloneAll(keys)}
}

func (c multiKeyCommand) Keys() [][]byte { return c.keys }

func (c multiKeyCommand) Validate() error {
	return requireAll("keys", c.keys)
}

func (c multiKeyCommand) request(cmd string) *resp.Request {
	return resp.NewRequest(cmd, c.keys...)
}

// storeCommand is a set-algebra command persisting its result at destination.
type storeCommand struct {
	multiKeyCommand
	destination []byte
}

func (c storeCommand) storeAt(destination []byte) storeCommand {
	c.destination = bytes.Clone(destination)
	return c
}

func (c storeCommand) Destination() []byte { return c.destination }

func (c storeCommand) Validate() error {
	if err := requireKey("destination", c.destination); err != nil {
		return err
	}
	return c.multiKeyCommand.Validate()
}

func (c storeCommand) request(cmd string) *resp.Request {
	return resp.NewRequest(cmd, c.destination).AddArgs(c.keys...)
}

// SInterCommand holds SINTER parameters.
type SInterCommand struct{ multiKeyCommand }

// SInterKeys creates an SINTER command over keys.
func SInterKeys(keys ...[]byte) SInterCommand {
	return SInterCommand{newMultiKey(keys)}
}

// SUnionCommand holds SUNION parameters.
type SUnionCommand struct{ multiKeyCommand }

// SUnionKeys creates an SUNION command over keys.
func SUnionKeys(keys ...[]byte) SUnionCommand {
	return SUnionCommand{newMultiKey(keys)}
}

// SDiffCommand holds SDIFF parameters. The first key is the minuend.
type SDiffCommand struct{ multiKeyCommand }

// SDiffKeys creates an SDIFF command over keys.
func SDiffKeys(keys ...[]byte) SDiffCommand {
	return SDiffCommand{newMultiKey(keys)}
}

// SInterStoreCommand holds SINTERSTORE parameters.
type SInterStoreCommand struct{ storeCommand }

// SInterStoreKeys creates an SINTERSTORE command over keys. StoreAt must be applied.
func SInterStoreKeys(keys ...[]byte) SInterStoreCommand {
	return SInterStoreCommand{storeCommand{multiKeyCommand: newMultiKey(keys)}}
}

// StoreAt applies the destination key.
func (c SInterStoreCommand) StoreAt(destination []byte) SInterStoreCommand {
	return SInterStoreCommand{c.storeAt(destination)}
}

// SUnionStoreCommand holds SUNIONSTORE parameters.
type SUnionStoreCommand struct{ storeCommand }

// SUnionStoreKeys creates an SUNIONSTORE command over keys. StoreAt must be applied.
func SUnionStoreKeys(keys ...[]byte) SUnionStoreCommand {
	return SUnionStoreCommand{storeCommand{multiKeyCommand: newMultiKey(keys)}}
}

// StoreAt applies the destination key.
func (c SUnionStoreCommand) StoreAt(destination []byte) SUnionStoreCommand {
	return SUnionStoreCommand{c.storeAt(destination)}
}

// SDiffStoreCommand holds SDIFFSTORE parameters.
type SDiffStoreCommand struct{ storeCommand }

// SDiffStoreKeys creates an SDIFFSTORE command over keys. StoreAt must be applied.
func SDiffStoreKeys(keys ...[]byte) SDiffStoreCommand {
	return SDiffStoreCommand{storeCommand{multiKeyCommand: newMultiKey(keys)}}
}

// StoreAt applies the destination key.
func (c SDiffStoreCommand) StoreAt(destination []byte) SDiffStoreCommand {
	return SDiffStoreCommand{c.storeAt(destination)}
}

// SRandMembersCommand holds SRANDMEMBER parameters.
type SRandMembersCommand struct {
	key   []byte
	count int64
	// hasCount is false for the single-value form, which the store answers
	// with one bulk string instead of an array.
	hasCount bool
}

// SRandMembersCount creates an SRANDMEMBER command retrieving count members.
// A negative count allows the same member to be returned several times.
func SRandMembersCount(count int64) SRandMembersCommand {
	return SRandMembersCommand{count: count, hasCount: true}
}

// SRandMembersSingle creates an SRANDMEMBER command retrieving one member.
func SRandMembersSingle() SRandMembersCommand {
	return SRandMembersCommand{}
}

// From applies the key.
func (c SRandMembersCommand) From(key []byte) SRandMembersCommand {
	c.key = bytes.Clone(key)
	return c
}

func (c SRandMembersCommand) Key() []byte { return c.key }

// Count returns the requested count, and false for the single-value form.
func (c SRandMembersCommand) Count() (int64, bool) { return c.count, c.hasCount }

func (c SRandMembersCommand) Validate() error {
	return requireKey("key", c.key)
}

func (c SRandMembersCommand) request() *resp.Request {
	req := resp.NewRequest(resp.CmdSRandMember, c.key)
	if c.hasCount {
		req.AddArg(strconv.AppendInt(nil, c.count, 10))
	}
	return req
}
