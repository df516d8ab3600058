package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/pmkv/ssbtree"
	"github.com/pmkv/ssbtree/internal/epoch"
)

// REPL is the interactive command loop driving one open *ssbtree.Tree.
// It registers a single epoch.ThreadInfo for its own lifetime, matching
// the library's "register once per goroutine, reuse the handle"
// contract.
type REPL struct {
	tree  *ssbtree.Tree
	ti    *epoch.ThreadInfo
	liner *liner.State

	presets map[string]workloadPreset
}

func newREPL(tree *ssbtree.Tree) *REPL {
	return &REPL{tree: tree, ti: tree.RegisterThread()}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssb-bench_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("ssb-bench - ssbtree CLI")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("ssb-bench> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil

		case "help", "?":
			r.printHelp()

		case "put":
			r.cmdPut(args)
		case "get":
			r.cmdGet(args)
		case "del", "delete":
			r.cmdDelete(args)
		case "scan", "ls", "list":
			r.cmdScan(args)
		case "len", "count", "stats":
			r.cmdStats()
		case "bulk":
			r.cmdBulk(args)
		case "seq":
			r.cmdSeq(args)
		case "bench":
			r.cmdBench(args)
		case "preset":
			r.cmdPreset(args)
		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"put", "get", "del", "delete",
		"scan", "ls", "list",
		"len", "count", "stats",
		"bulk", "seq", "bench", "preset",
		"clear", "cls", "help", "exit", "quit", "q",
	}

	var completions []string
	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}
	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <key> <value>              Insert or update a key")
	fmt.Println("  get <key>                      Retrieve a key's value")
	fmt.Println("  del <key> [--rebalance]        Delete a key (optionally merge underfull nodes)")
	fmt.Println("  scan <lo> <hi> [limit]         List keys in [lo, hi]")
	fmt.Println("  len / stats                    Show tree-wide counters")
	fmt.Println("  bulk <count>                   Insert N random keys")
	fmt.Println("  seq <count> [start]            Insert N sequential keys")
	fmt.Println("  bench <count>                  Benchmark put+get throughput")
	fmt.Println("  preset <file> <name>           Run a named workload preset from a YAML file")
	fmt.Println("  help                           Show this help")
	fmt.Println("  exit / quit / q                Exit")
}

func parseKV(args []string) (key, value uint64, err error) {
	if len(args) < 2 {
		return 0, 0, fmt.Errorf("usage: put <key> <value>")
	}
	key, err = strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid key: %w", err)
	}
	value, err = strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value: %w", err)
	}
	return key, value, nil
}

func (r *REPL) cmdPut(args []string) {
	key, value, err := parseKV(args)
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := r.tree.Put(r.ti, key, value); err != nil {
		fmt.Printf("put failed: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: get <key>")
		return
	}
	key, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("invalid key: %v\n", err)
		return
	}
	value, ok, err := r.tree.Lookup(r.ti, key)
	if err != nil {
		fmt.Printf("get failed: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("(not found)")
		return
	}
	fmt.Println(value)
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: del <key> [--rebalance]")
		return
	}
	key, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("invalid key: %v\n", err)
		return
	}

	if len(args) >= 2 && args[1] == "--rebalance" {
		err = r.tree.RemoveRebalance(r.ti, key)
	} else {
		err = r.tree.Remove(r.ti, key)
	}
	if err != nil {
		fmt.Printf("del failed: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (r *REPL) cmdScan(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: scan <lo> <hi> [limit]")
		return
	}
	lo, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("invalid lo: %v\n", err)
		return
	}
	hi, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Printf("invalid hi: %v\n", err)
		return
	}

	limit := 20
	if len(args) >= 3 {
		limit, _ = strconv.Atoi(args[2])
	}

	n, err := r.tree.Scan(r.ti, lo, hi, limit, func(k, v uint64) bool {
		fmt.Printf("  %d -> %d\n", k, v)
		return true
	})
	if err != nil {
		fmt.Printf("scan failed: %v\n", err)
		return
	}
	fmt.Printf("%d result(s)\n", n)
}

func (r *REPL) cmdStats() {
	s := r.tree.Stats()
	fmt.Printf("keys=%d nodes=%d height=%d splits=%d merges=%d retires=%d generation=%d\n",
		s.Keys, s.Nodes, s.Height, s.Splits, s.Merges, s.Retires, s.Generation)
}

func (r *REPL) cmdBulk(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: bulk <count>")
		return
	}
	count, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("invalid count: %v\n", err)
		return
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now()
	for i := 0; i < count; i++ {
		key := rng.Uint64()%(1<<62) + 1
		if err := r.tree.Put(r.ti, key, key); err != nil {
			fmt.Printf("put failed at %d: %v\n", i, err)
			return
		}
	}
	fmt.Printf("inserted %d random keys in %s\n", count, time.Since(start))
}

func (r *REPL) cmdSeq(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: seq <count> [start]")
		return
	}
	count, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("invalid count: %v\n", err)
		return
	}
	start := 1
	if len(args) >= 2 {
		start, _ = strconv.Atoi(args[1])
	}

	t0 := time.Now()
	for i := 0; i < count; i++ {
		key := uint64(start + i)
		if err := r.tree.Put(r.ti, key, key); err != nil {
			fmt.Printf("put failed at %d: %v\n", i, err)
			return
		}
	}
	fmt.Printf("inserted %d sequential keys starting at %d in %s\n", count, start, time.Since(t0))
}

func (r *REPL) cmdBench(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: bench <count>")
		return
	}
	count, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("invalid count: %v\n", err)
		return
	}

	keys := make([]uint64, count)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := range keys {
		keys[i] = rng.Uint64()%(1<<62) + 1
	}

	t0 := time.Now()
	for _, k := range keys {
		if err := r.tree.Put(r.ti, k, k); err != nil {
			fmt.Printf("put failed: %v\n", err)
			return
		}
	}
	putDur := time.Since(t0)

	t0 = time.Now()
	hits := 0
	for _, k := range keys {
		if _, ok, _ := r.tree.Lookup(r.ti, k); ok {
			hits++
		}
	}
	getDur := time.Since(t0)

	fmt.Printf("put: %d in %s (%.0f ops/s)\n", count, putDur, float64(count)/putDur.Seconds())
	fmt.Printf("get: %d in %s (%.0f ops/s), %d hits\n", count, getDur, float64(count)/getDur.Seconds(), hits)
}

func (r *REPL) cmdPreset(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: preset <file> <name>")
		return
	}

	presets, err := loadPresets(args[0])
	if err != nil {
		fmt.Printf("loading presets: %v\n", err)
		return
	}

	p, ok := presets[args[1]]
	if !ok {
		fmt.Printf("unknown preset %q in %s\n", args[1], args[0])
		return
	}

	fmt.Printf("running preset %q: %s\n", p.Name, p.Description)
	r.runPreset(p)
}

func (r *REPL) runPreset(p workloadPreset) {
	keys := make([]uint64, p.Keys)
	for i := range keys {
		keys[i] = uint64(i + 1)
	}

	switch p.Order {
	case "random":
		rand.New(rand.NewSource(time.Now().UnixNano())).Shuffle(len(keys), func(i, j int) {
			keys[i], keys[j] = keys[j], keys[i]
		})
	case "reverse":
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	t0 := time.Now()
	reads, writes := 0, 0
	for _, k := range keys {
		if err := r.tree.Put(r.ti, k, k); err != nil {
			fmt.Printf("put failed: %v\n", err)
			return
		}
		writes++

		for i := 0; i < p.ReadWrite; i++ {
			if _, _, err := r.tree.Lookup(r.ti, k); err != nil {
				fmt.Printf("get failed: %v\n", err)
				return
			}
			reads++
		}
	}

	for i := 0; i < p.Scans && p.ScanWindow > 0; i++ {
		lo := uint64(1)
		hi := lo + uint64(p.ScanWindow) - 1
		_, _ = r.tree.Scan(r.ti, lo, hi, 0, func(uint64, uint64) bool { return true })
	}

	fmt.Printf("preset %q: %d writes, %d reads, %d scans in %s\n", p.Name, writes, reads, p.Scans, time.Since(t0))
}
