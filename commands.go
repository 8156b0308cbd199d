package setstream

import (
	"context"
	"iter"
	"slices"
)

// Commands provides single-value set operations.
//
// Each call validates its arguments, builds one command, runs it as a
// one-element batch through BatchCommands and unwraps the response.
// Invalid arguments are reported before anything is sent.
type Commands struct {
	batch *BatchCommands
}

// NewCommands creates a new Commands instance on top of batch.
func NewCommands(batch *BatchCommands) *Commands {
	return &Commands{
		batch: batch,
	}
}

// Batch returns the underlying batch operations.
func (c *Commands) Batch() *BatchCommands {
	return c.batch
}

// first returns the output of the first response of seq, then stops the
// batch so nothing else is dispatched.
func first[C Command, O any](seq iter.Seq2[Response[C, O], error]) (O, error) {
	var zero O
	for r, err := range seq {
		if err != nil {
			return zero, err
		}
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Output, nil
	}
	return zero, ErrNoResponse
}

func one[C Command](cmd C) iter.Seq[C] {
	return slices.Values([]C{cmd})
}

// SAdd adds values to the set at key and returns the number of members added.
func (c *Commands) SAdd(ctx context.Context, key []byte, values ...[]byte) (int64, error) {
	if err := requireKey("key", key); err != nil {
		return 0, err
	}
	if err := requireAll("values", values); err != nil {
		return 0, err
	}
	return first(c.batch.SAdd(ctx, one(SAddValues(values...).To(key))))
}

// SRem removes values from the set at key and returns the number of members removed.
func (c *Commands) SRem(ctx context.Context, key []byte, values ...[]byte) (int64, error) {
	if err := requireKey("key", key); err != nil {
		return 0, err
	}
	if err := requireAll("values", values); err != nil {
		return 0, err
	}
	return first(c.batch.SRem(ctx, one(SRemValues(values...).From(key))))
}

// SPop removes and returns a random member of the set at key.
// Returns nil without error when the set is empty or missing.
func (c *Commands) SPop(ctx context.Context, key []byte) ([]byte, error) {
	if err := requireKey("key", key); err != nil {
		return nil, err
	}
	return first(c.batch.SPop(ctx, one(NewKeyCommand(key))))
}

// SMove moves value from the set at source to the set at destination.
// Returns false when value is not a member of source.
func (c *Commands) SMove(ctx context.Context, source, destination, value []byte) (bool, error) {
	if err := requireKey("source", source); err != nil {
		return false, err
	}
	if err := requireKey("destination", destination); err != nil {
		return false, err
	}
	if err := requireKey("value", value); err != nil {
		return false, err
	}
	return first(c.batch.SMove(ctx, one(SMoveValue(value).From(source).To(destination))))
}

// SCard returns the number of members of the set at key.
func (c *Commands) SCard(ctx context.Context, key []byte) (int64, error) {
	if err := requireKey("key", key); err != nil {
		return 0, err
	}
	return first(c.batch.SCard(ctx, one(NewKeyCommand(key))))
}

// SIsMember reports whether value is a member of the set at key.
func (c *Commands) SIsMember(ctx context.Context, key, value []byte) (bool, error) {
	if err := requireKey("key", key); err != nil {
		return false, err
	}
	if err := requireKey("value", value); err != nil {
		return false, err
	}
	return first(c.batch.SIsMember(ctx, one(SIsMemberValue(value).Of(key))))
}

// SInter returns the members present in every set at keys.
func (c *Commands) SInter(ctx context.Context, keys ...[]byte) ([][]byte, error) {
	if err := requireAll("keys", keys); err != nil {
		return nil, err
	}
	return first(c.batch.SInter(ctx, one(SInterKeys(keys...))))
}

// SInterStore stores the intersection of the sets at keys at destination
// and returns its cardinality.
func (c *Commands) SInterStore(ctx context.Context, destination []byte, keys ...[]byte) (int64, error) {
	if err := requireKey("destination", destination); err != nil {
		return 0, err
	}
	if err := requireAll("keys", keys); err != nil {
		return 0, err
	}
	return first(c.batch.SInterStore(ctx, one(SInterStoreKeys(keys...).StoreAt(destination))))
}

// SUnion returns the members present in any set at keys.
func (c *Commands) SUnion(ctx context.Context, keys ...[]byte) ([][]byte, error) {
	if err := requireAll("keys", keys); err != nil {
		return nil, err
	}
	return first(c.batch.SUnion(ctx, one(SUnionKeys(keys...))))
}

// SUnionStore stores the union of the sets at keys at destination
// and returns its cardinality.
func (c *Commands) SUnionStore(ctx context.Context, destination []byte, keys ...[]byte) (int64, error) {
	if err := requireKey("destination", destination); err != nil {
		return 0, err
	}
	if err := requireAll("keys", keys); err != nil {
		return 0, err
	}
	return first(c.batch.SUnionStore(ctx, one(SUnionStoreKeys(keys...).StoreAt(destination))))
}

// SDiff returns the members of the first set that are in none of the others.
func (c *Commands) SDiff(ctx context.Context, keys ...[]byte) ([][]byte, error) {
	if err := requireAll("keys", keys); err != nil {
		return nil, err
	}
	return first(c.batch.SDiff(ctx, one(SDiffKeys(keys...))))
}

// SDiffStore stores the difference of the sets at keys at destination
// and returns its cardinality.
func (c *Commands) SDiffStore(ctx context.Context, destination []byte, keys ...[]byte) (int64, error) {
	if err := requireKey("destination", destination); err != nil {
		return 0, err
	}
	if err := requireAll("keys", keys); err != nil {
		return 0, err
	}
	return first(c.batch.SDiffStore(ctx, one(SDiffStoreKeys(keys...).StoreAt(destination))))
}

// SMembers returns all members of the set at key.
func (c *Commands) SMembers(ctx context.Context, key []byte) ([][]byte, error) {
	if err := requireKey("key", key); err != nil {
		return nil, err
	}
	return first(c.batch.SMembers(ctx, one(NewKeyCommand(key))))
}

// SRandMembers returns count random members of the set at key.
// A negative count may return the same member several times.
func (c *Commands) SRandMembers(ctx context.Context, key []byte, count int64) ([][]byte, error) {
	if err := requireKey("key", key); err != nil {
		return nil, err
	}
	return first(c.batch.SRandMember(ctx, one(SRandMembersCount(count).From(key))))
}

// SRandMember returns one random member of the set at key, or nil when the
// set is empty or missing.
func (c *Commands) SRandMember(ctx context.Context, key []byte) ([]byte, error) {
	members, err := c.SRandMembers(ctx, key, 1)
	if err != nil || len(members) == 0 {
		return nil, err
	}
	return members[0], nil
}
