package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pior/setstream"
	"github.com/pior/setstream/internal/logger"
)

const usage = `Commands:
  sadd <key> <member>...           - Add members to a set
  srem <key> <member>...           - Remove members from a set
  spop <key>                       - Remove and return a random member
  smove <src> <dst> <member>       - Move a member between sets
  scard <key>                      - Count members
  sismember <key> <member>         - Test membership
  smembers <key>                   - List members
  srandmember <key> [count]        - Random members
  sinter|sunion|sdiff <key>...     - Set algebra
  sinterstore|sunionstore|sdiffstore <dst> <key>...
  mcard <key>...                   - SCARD of several keys in one batch
  stats                            - Show client statistics
  quit                             - Exit the CLI

With several servers, the keys of smove and of the set algebra commands must
share a server: use a hash tag, as in {user1}:a and {user1}:b.`

func main() {
	fmt.Println("Setstream CLI Tool")
	fmt.Println("==================")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	config, err := setstream.ConfigFromEnv()
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if len(config.Servers) == 0 {
		config.Servers = []string{"127.0.0.1:6379"}
	}
	config.Logger = logger.NewLogger()

	client, err := setstream.NewClient(setstream.NewStaticServers(config.Servers...), config)
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		args := toBytes(parts[1:])

		switch command {
		case "help":
			fmt.Println(usage)
		case "quit", "exit":
			fmt.Println("Goodbye!")
			return
		case "stats":
			handleStats(client)
		default:
			run(client, command, args)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

func run(client *setstream.Client, command string, args [][]byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	out, err := dispatch(ctx, client, command, args)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	fmt.Printf("%s(took %v)\n", out, duration)
}

func dispatch(ctx context.Context, client *setstream.Client, command string, args [][]byte) (string, error) {
	arity := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s needs at least %d argument(s)", command, n)
		}
		return nil
	}

	switch command {
	case "sadd", "srem":
		if err := arity(2); err != nil {
			return "", err
		}
		op := client.SAdd
		if command == "srem" {
			op = client.SRem
		}
		return formatInt(op(ctx, args[0], args[1:]...))

	case "spop":
		if err := arity(1); err != nil {
			return "", err
		}
		return formatValue(client.SPop(ctx, args[0]))

	case "smove":
		if err := arity(3); err != nil {
			return "", err
		}
		return formatBool(client.SMove(ctx, args[0], args[1], args[2]))

	case "scard":
		if err := arity(1); err != nil {
			return "", err
		}
		return formatInt(client.SCard(ctx, args[0]))

	case "sismember":
		if err := arity(2); err != nil {
			return "", err
		}
		return formatBool(client.SIsMember(ctx, args[0], args[1]))

	case "smembers":
		if err := arity(1); err != nil {
			return "", err
		}
		return formatList(client.SMembers(ctx, args[0]))

	case "srandmember":
		if err := arity(1); err != nil {
			return "", err
		}
		if len(args) == 1 {
			return formatValue(client.SRandMember(ctx, args[0]))
		}
		count, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid count: %w", err)
		}
		return formatList(client.SRandMembers(ctx, args[0], count))

	case "sinter":
		return formatList(client.SInter(ctx, args...))
	case "sunion":
		return formatList(client.SUnion(ctx, args...))
	case "sdiff":
		return formatList(client.SDiff(ctx, args...))

	case "sinterstore", "sunionstore", "sdiffstore":
		if err := arity(2); err != nil {
			return "", err
		}
		op := map[string]func(context.Context, []byte, ...[]byte) (int64, error){
			"sinterstore": client.SInterStore,
			"sunionstore": client.SUnionStore,
			"sdiffstore":  client.SDiffStore,
		}[command]
		return formatInt(op(ctx, args[0], args[1:]...))

	case "mcard":
		if err := arity(1); err != nil {
			return "", err
		}
		return handleMultiCard(ctx, client, args)

	default:
		return "", fmt.Errorf("unknown command %q, type 'help' for available commands", command)
	}
}

func handleMultiCard(ctx context.Context, client *setstream.Client, keys [][]byte) (string, error) {
	cmds := make([]setstream.KeyCommand, len(keys))
	for i, key := range keys {
		cmds[i] = setstream.NewKeyCommand(key)
	}

	var sb strings.Builder
	for r, err := range client.Batch().SCard(ctx, slices.Values(cmds)) {
		if err != nil {
			return sb.String(), err
		}
		if r.Err != nil {
			fmt.Fprintf(&sb, "  %s: <error: %v>\n", r.Input.Key(), r.Err)
			continue
		}
		fmt.Fprintf(&sb, "  %s: %d\n", r.Input.Key(), r.Output)
	}
	return sb.String(), nil
}

func handleStats(client *setstream.Client) {
	stats := client.Stats()
	fmt.Println("Client Statistics:")
	fmt.Printf("  Requests: %d\n", stats.Requests)
	fmt.Printf("  Error replies: %d\n", stats.ReplyErrors)
	fmt.Printf("  Errors: %d\n", stats.Errors)
	fmt.Println()

	for i, pool := range client.AllPoolStats() {
		fmt.Printf("Server %d (%s):\n", i+1, pool.Addr)
		fmt.Printf("  Total Connections: %d\n", pool.PoolStats.TotalConns)
		fmt.Printf("  Active Connections: %d\n", pool.PoolStats.ActiveConns)
		fmt.Printf("  Idle Connections: %d\n", pool.PoolStats.IdleConns)
		fmt.Printf("  Circuit Breaker: %s\n", pool.CircuitBreakerState)
		fmt.Println()
	}
}

func toBytes(parts []string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func formatInt(n int64, err error) (string, error) {
	return fmt.Sprintf("(integer) %d\n", n), err
}

func formatBool(ok bool, err error) (string, error) {
	return fmt.Sprintf("%t\n", ok), err
}

func formatValue(v []byte, err error) (string, error) {
	if v == nil {
		return "(nil)\n", err
	}
	return fmt.Sprintf("%q\n", v), err
}

func formatList(items [][]byte, err error) (string, error) {
	if len(items) == 0 {
		return "(empty)\n", err
	}
	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "%d) %q\n", i+1, item)
	}
	return sb.String(), err
}
