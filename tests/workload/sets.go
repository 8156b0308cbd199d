package workload

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/pior/setstream"
)

const (
	keySpace    = 200
	memberSpace = 50
	batchSize   = 20

	// sets n and n+keyGroups share a hash tag, so the same server
	keyGroups = 20
)

func setKey(n int) []byte {
	return fmt.Appendf(nil, "{g%d}:set:%d", n%keyGroups, n)
}

func member(n int) []byte {
	return fmt.Appendf(nil, "member:%d", n)
}

// MixedWorkload spreads operations over every set command.
// Distribution: 40% SISMEMBER, 20% SADD, 10% SREM, 10% SCARD, 10% SINTER, 10% batched SCARD.
type MixedWorkload struct{}

func (w *MixedWorkload) Name() string {
	return "mixed"
}

func (w *MixedWorkload) Description() string {
	return "Mixed set operations: 40% sismember, 20% sadd, 10% srem, 10% scard, 10% sinter, 10% batch scard"
}

func (w *MixedWorkload) Execute(ctx context.Context, client *setstream.Client, workerID int) error {
	n := rand.IntN(keySpace)
	key := setKey(n)
	value := member(rand.IntN(memberSpace))

	switch op := rand.IntN(100); {
	case op < 40:
		_, err := client.SIsMember(ctx, key, value)
		return err
	case op < 60:
		_, err := client.SAdd(ctx, key, value)
		return err
	case op < 70:
		_, err := client.SRem(ctx, key, value)
		return err
	case op < 80:
		_, err := client.SCard(ctx, key)
		return err
	case op < 90:
		_, err := client.SInter(ctx, key, setKey(n+keyGroups))
		return err
	default:
		return batchSCard(ctx, client)
	}
}

// ReadHeavyWorkload is dominated by membership checks.
// Distribution: 90% SISMEMBER, 10% SADD.
type ReadHeavyWorkload struct{}

func (w *ReadHeavyWorkload) Name() string {
	return "read-heavy"
}

func (w *ReadHeavyWorkload) Description() string {
	return "Read-heavy workload: 90% sismember, 10% sadd"
}

func (w *ReadHeavyWorkload) Execute(ctx context.Context, client *setstream.Client, workerID int) error {
	key := setKey(rand.IntN(keySpace))
	value := member(rand.IntN(memberSpace))

	if rand.IntN(100) < 90 {
		_, err := client.SIsMember(ctx, key, value)
		return err
	}
	_, err := client.SAdd(ctx, key, value)
	return err
}

// BatchHeavyWorkload streams batches of SADD followed by SMEMBERS, spreading
// each batch over every server.
type BatchHeavyWorkload struct{}

func (w *BatchHeavyWorkload) Name() string {
	return "batch-heavy"
}

func (w *BatchHeavyWorkload) Description() string {
	return fmt.Sprintf("Batch-heavy workload: batches of %d sadd then %d smembers", batchSize, batchSize)
}

func (w *BatchHeavyWorkload) Execute(ctx context.Context, client *setstream.Client, workerID int) error {
	base := rand.IntN(keySpace)

	adds := func(yield func(setstream.SAddCommand) bool) {
		for i := range batchSize {
			cmd := setstream.SAddValue(member(workerID)).To(setKey((base + i) % keySpace))
			if !yield(cmd) {
				return
			}
		}
	}
	for r, err := range client.Batch().SAdd(ctx, adds) {
		if err != nil {
			return err
		}
		if r.Err != nil {
			return r.Err
		}
	}

	for r, err := range client.Batch().SMembers(ctx, keyRange(base, batchSize)) {
		if err != nil {
			return err
		}
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

func batchSCard(ctx context.Context, client *setstream.Client) error {
	for r, err := range client.Batch().SCard(ctx, keyRange(rand.IntN(keySpace), batchSize)) {
		if err != nil {
			return err
		}
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

func keyRange(base, n int) iter.Seq[setstream.KeyCommand] {
	return func(yield func(setstream.KeyCommand) bool) {
		for i := range n {
			if !yield(setstream.NewKeyCommand(setKey((base + i) % keySpace))) {
				return
			}
		}
	}
}
