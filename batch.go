package setstream

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pior/setstream/resp"
)

// DefaultConcurrency is the number of requests a batch keeps in flight when
// BatchOptions.Concurrency is zero.
const DefaultConcurrency = 16

// DefaultPipeline is the maximum number of commands grouped into one round
// trip when BatchOptions.Pipeline is zero.
const DefaultPipeline = 32

var errNilReply = errors.New("executor returned no reply")

// Executor executes a single request against the store.
//
// A failure of the store for this request only (wrong type, bad arguments)
// is reported on Reply.Err. A returned error means the executor itself
// failed (I/O, pool, circuit breaker) and fails the whole batch.
type Executor interface {
	Execute(ctx context.Context, req *resp.Request) (*resp.Reply, error)
}

// BatchExecutor is an Executor able to send several requests in one round
// trip. ExecuteBatch returns one reply per request, in request order; its
// error has the meaning of an Execute error for every request.
type BatchExecutor interface {
	Executor
	ExecuteBatch(ctx context.Context, reqs []*resp.Request) ([]*resp.Reply, error)
}

// BatchOptions configures BatchCommands.
type BatchOptions struct {
	// Concurrency is the maximum number of requests in flight per batch.
	// Zero means DefaultConcurrency.
	Concurrency int

	// Pipeline is the maximum number of ready commands grouped into one
	// ExecuteBatch call when the executor is a BatchExecutor. Each group takes
	// one concurrency slot. Zero means DefaultPipeline; 1 disables grouping.
	Pipeline int

	// Logger receives debug events tagged with a batch id.
	// If nil, logging is disabled.
	Logger *zerolog.Logger
}

// BatchCommands turns sequences of commands into sequences of correlated
// responses.
//
// Every batch operation follows the same contract:
//   - the input is pulled lazily and may be unbounded;
//   - each command yields exactly one Response carrying that command as Input;
//   - responses arrive in completion order, not submission order;
//   - a command failing validation or rejected by the store yields a Response
//     with Err set, and the batch goes on;
//   - an Executor error ends the sequence with (zero, err);
//   - breaking out of the loop cancels pending requests and stops pulling input.
//
// An input sequence that blocks (e.g. reading a channel) must observe the
// same context, otherwise abandoning the output waits for its next element.
type BatchCommands struct {
	executor    Executor
	concurrency int
	pipeline    int
	logger      zerolog.Logger
}

// NewBatchCommands creates a new BatchCommands instance.
func NewBatchCommands(executor Executor, opts BatchOptions) *BatchCommands {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	pipeline := opts.Pipeline
	if pipeline <= 0 {
		pipeline = DefaultPipeline
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &BatchCommands{
		executor:    executor,
		concurrency: concurrency,
		pipeline:    pipeline,
		logger:      logger,
	}
}

// operation describes how one kind of command travels to the store and back.
type operation[C Command, O any] struct {
	name   string
	encode func(C) *resp.Request
	decode func(*resp.Reply) (O, error)
}

// named adapts commands whose encoding depends on the command name.
func named[C interface{ request(string) *resp.Request }](cmd string) func(C) *resp.Request {
	return func(c C) *resp.Request { return c.request(cmd) }
}

// decodeMembers accepts both the array form and the single bulk form (SRANDMEMBER without count).
func decodeMembers(r *resp.Reply) ([][]byte, error) {
	if r.Kind != resp.KindBulk {
		return r.List()
	}
	b, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	if b == nil {
		return [][]byte{}, nil
	}
	return [][]byte{b}, nil
}

var (
	opSAdd = operation[SAddCommand, int64]{resp.CmdSAdd, SAddCommand.request, (*resp.Reply).Integer}
	opSRem = operation[SRemCommand, int64]{resp.CmdSRem, SRemCommand.request, (*resp.Reply).Integer}
	opSPop = operation[KeyCommand, []byte]{resp.CmdSPop, named[KeyCommand](resp.CmdSPop), (*resp.Reply).Bytes}

	opSMove     = operation[SMoveCommand, bool]{resp.CmdSMove, SMoveCommand.request, (*resp.Reply).Bool}
	opSCard     = operation[KeyCommand, int64]{resp.CmdSCard, named[KeyCommand](resp.CmdSCard), (*resp.Reply).Integer}
	opSIsMember = operation[SIsMemberCommand, bool]{resp.CmdSIsMember, SIsMemberCommand.request, (*resp.Reply).Bool}

	opSInter = operation[SInterCommand, [][]byte]{resp.CmdSInter, named[SInterCommand](resp.CmdSInter), decodeMembers}
	opSUnion = operation[SUnionCommand, [][]byte]{resp.CmdSUnion, named[SUnionCommand](resp.CmdSUnion), decodeMembers}
	opSDiff  = operation[SDiffCommand, [][]byte]{resp.CmdSDiff, named[SDiffCommand](resp.CmdSDiff), decodeMembers}

	opSInterStore = operation[SInterStoreCommand, int64]{resp.CmdSInterStore, named[SInterStoreCommand](resp.CmdSInterStore), (*resp.Reply).Integer}
	opSUnionStore = operation[SUnionStoreCommand, int64]{resp.CmdSUnionStore, named[SUnionStoreCommand](resp.CmdSUnionStore), (*resp.Reply).Integer}
	opSDiffStore  = operation[SDiffStoreCommand, int64]{resp.CmdSDiffStore, named[SDiffStoreCommand](resp.CmdSDiffStore), (*resp.Reply).Integer}

	opSMembers    = operation[KeyCommand, [][]byte]{resp.CmdSMembers, named[KeyCommand](resp.CmdSMembers), decodeMembers}
	opSRandMember = operation[SRandMembersCommand, [][]byte]{resp.CmdSRandMember, SRandMembersCommand.request, decodeMembers}
)

// SAdd adds Values to the set at Key. Output is the number of members added.
func (b *BatchCommands) SAdd(ctx context.Context, commands iter.Seq[SAddCommand]) iter.Seq2[NumericResponse[SAddCommand], error] {
	return execute(ctx, b, opSAdd, commands)
}

// SRem removes Values from the set at Key. Output is the number of members removed.
func (b *BatchCommands) SRem(ctx context.Context, commands iter.Seq[SRemCommand]) iter.Seq2[NumericResponse[SRemCommand], error] {
	return execute(ctx, b, opSRem, commands)
}

// SPop removes and returns a random member of the set at Key. Output is nil when the set is empty.
func (b *BatchCommands) SPop(ctx context.Context, commands iter.Seq[KeyCommand]) iter.Seq2[ValueResponse[KeyCommand], error] {
	return execute(ctx, b, opSPop, commands)
}

// SMove moves Value from the set at Key to the set at Destination.
// Output is false when Value was not a member of the source.
func (b *BatchCommands) SMove(ctx context.Context, commands iter.Seq[SMoveCommand]) iter.Seq2[BoolResponse[SMoveCommand], error] {
	return execute(ctx, b, opSMove, commands)
}

// SCard returns the cardinality of the set at Key.
func (b *BatchCommands) SCard(ctx context.Context, commands iter.Seq[KeyCommand]) iter.Seq2[NumericResponse[KeyCommand], error] {
	return execute(ctx, b, opSCard, commands)
}

// SIsMember reports whether Value is a member of the set at Key.
func (b *BatchCommands) SIsMember(ctx context.Context, commands iter.Seq[SIsMemberCommand]) iter.Seq2[BoolResponse[SIsMemberCommand], error] {
	return execute(ctx, b, opSIsMember, commands)
}

// SInter returns the intersection of the sets at Keys.
func (b *BatchCommands) SInter(ctx context.Context, commands iter.Seq[SInterCommand]) iter.Seq2[MultiValueResponse[SInterCommand], error] {
	return execute(ctx, b, opSInter, commands)
}

// SInterStore stores the intersection of the sets at Keys at Destination.
// Output is the cardinality of the stored set.
func (b *BatchCommands) SInterStore(ctx context.Context, commands iter.Seq[SInterStoreCommand]) iter.Seq2[NumericResponse[SInterStoreCommand], error] {
	return execute(ctx, b, opSInterStore, commands)
}

// SUnion returns the union of the sets at Keys.
func (b *BatchCommands) SUnion(ctx context.Context, commands iter.Seq[SUnionCommand]) iter.Seq2[MultiValueResponse[SUnionCommand], error] {
	return execute(ctx, b, opSUnion, commands)
}

// SUnionStore stores the union of the sets at Keys at Destination.
func (b *BatchCommands) SUnionStore(ctx context.Context, commands iter.Seq[SUnionStoreCommand]) iter.Seq2[NumericResponse[SUnionStoreCommand], error] {
	return execute(ctx, b, opSUnionStore, commands)
}

// SDiff returns the members of the first set at Keys that are in none of the others.
func (b *BatchCommands) SDiff(ctx context.Context, commands iter.Seq[SDiffCommand]) iter.Seq2[MultiValueResponse[SDiffCommand], error] {
	return execute(ctx, b, opSDiff, commands)
}

// SDiffStore stores the difference of the sets at Keys at Destination.
func (b *BatchCommands) SDiffStore(ctx context.Context, commands iter.Seq[SDiffStoreCommand]) iter.Seq2[NumericResponse[SDiffStoreCommand], error] {
	return execute(ctx, b, opSDiffStore, commands)
}

// SMembers returns all members of the set at Key.
func (b *BatchCommands) SMembers(ctx context.Context, commands iter.Seq[KeyCommand]) iter.Seq2[MultiValueResponse[KeyCommand], error] {
	return execute(ctx, b, opSMembers, commands)
}

// SRandMember returns random members of the set at Key.
// The single-value form yields zero or one member.
func (b *BatchCommands) SRandMember(ctx context.Context, commands iter.Seq[SRandMembersCommand]) iter.Seq2[MultiValueResponse[SRandMembersCommand], error] {
	return execute(ctx, b, opSRandMember, commands)
}

// execute is the batch engine shared by every operation.
func execute[C Command, O any](ctx context.Context, b *BatchCommands, op operation[C, O], commands iter.Seq[C]) iter.Seq2[Response[C, O], error] {
	return func(yield func(Response[C, O], error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		log := b.batchLogger(op.name)
		log.Debug().Msg("batch started")

		results := make(chan Response[C, O], b.concurrency)

		var runErr error
		go func() {
			runErr = run(ctx, b, op, commands, results)
			close(results)
		}()

		delivered := 0
		for r := range results {
			if !yield(r, nil) {
				cancel()
				// Wait for in-flight requests to observe the cancellation
				for range results {
				}
				log.Debug().Int("responses", delivered+1).Msg("batch abandoned by consumer")
				return
			}
			delivered++
		}

		if runErr != nil {
			log.Debug().Err(runErr).Int("responses", delivered).Msg("batch failed")
			yield(Response[C, O]{}, fmt.Errorf("setstream: %s: %w", op.name, runErr))
			return
		}

		log.Debug().Int("responses", delivered).Msg("batch completed")
	}
}

// run pulls commands and dispatches them with bounded concurrency.
// It returns the first Executor error, or the context error if ctx ended first.
func run[C Command, O any](ctx context.Context, b *BatchCommands, op operation[C, O], commands iter.Seq[C], results chan<- Response[C, O]) error {
	if executor, ok := b.executor.(BatchExecutor); ok && b.pipeline > 1 {
		return runPipelined(ctx, b, executor, op, commands, results)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for cmd := range commands {
		if gctx.Err() != nil {
			break
		}

		if err := cmd.Validate(); err != nil {
			if !send(gctx, results, Response[C, O]{Input: cmd, Err: err}) {
				break
			}
			continue
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			r, err := dispatch(gctx, b.executor, op, cmd)
			if err != nil {
				return err
			}
			send(gctx, results, r)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// runPipelined is run for a BatchExecutor. Input is pulled ahead into a
// buffer of b.pipeline commands; whenever a concurrency slot is free, the
// commands already buffered go out together. A slow input therefore yields
// small groups and a fast one full groups.
func runPipelined[C Command, O any](ctx context.Context, b *BatchCommands, executor BatchExecutor, op operation[C, O], commands iter.Seq[C], results chan<- Response[C, O]) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	ready := make(chan C, b.pipeline)
	pulled := make(chan struct{})
	go func() {
		defer close(pulled)
		defer close(ready)
		for cmd := range commands {
			if err := cmd.Validate(); err != nil {
				if !send(gctx, results, Response[C, O]{Input: cmd, Err: err}) {
					return
				}
				continue
			}
			if !send(gctx, ready, cmd) {
				return
			}
		}
	}()

	for {
		cmd, ok := receive(gctx, ready)
		if !ok {
			break
		}
		group := []C{cmd}
	fill:
		for len(group) < b.pipeline {
			select {
			case cmd, ok := <-ready:
				if !ok {
					break fill
				}
				group = append(group, cmd)
			default:
				break fill
			}
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return dispatchGroup(gctx, executor, op, group, results)
		})
	}

	err := g.Wait()
	<-pulled
	if err != nil {
		return err
	}
	return ctx.Err()
}

func dispatch[C Command, O any](ctx context.Context, executor Executor, op operation[C, O], cmd C) (Response[C, O], error) {
	reply, err := executor.Execute(ctx, op.encode(cmd))
	if err != nil {
		return Response[C, O]{}, err
	}
	return respond(op, cmd, reply), nil
}

// dispatchGroup sends group in one ExecuteBatch call and pairs each reply
// with the command at the same position.
func dispatchGroup[C Command, O any](ctx context.Context, executor BatchExecutor, op operation[C, O], group []C, results chan<- Response[C, O]) error {
	reqs := make([]*resp.Request, len(group))
	for i, cmd := range group {
		reqs[i] = op.encode(cmd)
	}

	replies, err := executor.ExecuteBatch(ctx, reqs)
	if err != nil {
		return err
	}

	for i, cmd := range group {
		var reply *resp.Reply
		if i < len(replies) {
			reply = replies[i]
		}
		if !send(ctx, results, respond(op, cmd, reply)) {
			return nil
		}
	}
	return nil
}

func respond[C Command, O any](op operation[C, O], cmd C, reply *resp.Reply) Response[C, O] {
	if reply == nil {
		return Response[C, O]{Input: cmd, Err: &ResponseError{Command: op.name, Reply: resp.NullBulk(), Err: errNilReply}}
	}

	if reply.HasError() {
		return Response[C, O]{Input: cmd, Err: reply.Err}
	}

	out, err := op.decode(reply)
	if err != nil {
		return Response[C, O]{Input: cmd, Err: &ResponseError{Command: op.name, Reply: reply, Err: err}}
	}

	return Response[C, O]{Input: cmd, Output: out}
}

func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

func receive[T any](ctx context.Context, ch <-chan T) (T, bool) {
	select {
	case v, ok := <-ch:
		return v, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

func (b *BatchCommands) batchLogger(op string) zerolog.Logger {
	if b.logger.GetLevel() > zerolog.DebugLevel || zerolog.GlobalLevel() > zerolog.DebugLevel {
		return b.logger
	}
	return b.logger.With().
		Str("batch_id", uuid.NewString()).
		Str("command", op).
		Logger()
}
