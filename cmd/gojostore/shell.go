package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sushant-115/gojostore/core/engine"
	"github.com/sushant-115/gojostore/core/tuple"
	"go.uber.org/multierr"
)

const shellHelp = `commands:
  create <table> <name:type>...   create a table (types: int, string)
  insert <table> <value>...       insert one row
  delete <table> <field op value> delete matching rows
  scan <table> [field op value]   print rows, optionally filtered
  begin | commit | abort          explicit transaction control
  analyze                         rebuild statistics for every table
  stats <table> [field op value]  print statistics or an estimate
  pool                            buffer pool and lock summary
  help | exit`

type ShellCmd struct {
	History string `help:"History file" type:"path"`
}

func (c *ShellCmd) Run(ctx context.Context, g *Globals) (err error) {
	e, err := g.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, e.Close(context.Background())) }()

	history := c.History
	if history == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			history = filepath.Join(home, ".gojostore_history")
		}
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "gojostore> ",
		HistoryFile:     history,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start line editor: %w", err)
	}
	defer rl.Close()

	sh := newShell(e, rl.Stdout())
	defer func() { err = multierr.Append(err, sh.close(context.Background())) }()
	fmt.Fprintln(rl.Stdout(), "type 'help' for commands")
	for {
		line, rerr := rl.Readline()
		if errors.Is(rerr, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return rerr
		}
		quit, xerr := sh.exec(ctx, line)
		if xerr != nil {
			fmt.Fprintf(rl.Stdout(), "error: %v\n", xerr)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

// shell interprets one command line at a time. Outside an explicit
// transaction each command runs in its own.
type shell struct {
	e   *engine.Engine
	out io.Writer
	txn *engine.Txn
}

func newShell(e *engine.Engine, out io.Writer) *shell {
	return &shell{e: e, out: out}
}

func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "exit", "quit":
		return true, nil
	case "help":
		fmt.Fprintln(s.out, shellHelp)
		return false, nil
	case "create":
		return false, s.create(args)
	case "insert":
		return false, s.insert(ctx, args)
	case "delete":
		return false, s.delete(ctx, args)
	case "scan":
		return false, s.scan(ctx, args)
	case "begin":
		if s.txn != nil {
			return false, fmt.Errorf("%s is already open", s.txn.ID)
		}
		s.txn = s.e.Begin()
		fmt.Fprintf(s.out, "began %s\n", s.txn.ID)
		return false, nil
	case "commit", "abort":
		if s.txn == nil {
			return false, errors.New("no open transaction")
		}
		txn := s.txn
		s.txn = nil
		var err error
		if cmd == "commit" {
			err = txn.Commit(ctx)
		} else {
			err = txn.Abort(ctx)
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "%s %s\n", txn.ID, txn.State)
		return false, nil
	case "analyze":
		if err := s.e.Analyze(ctx); err != nil {
			return false, err
		}
		snap := s.e.Stats().Snapshot()
		fmt.Fprintf(s.out, "analyzed %d tables\n", len(snap))
		return false, nil
	case "stats":
		return false, s.stats(args)
	case "pool":
		pool := s.e.Pool()
		fmt.Fprintf(s.out, "pages %d/%d, locked pages %d\n", pool.Size(), pool.Capacity(), s.e.Locks().LockedPages())
		for _, pid := range pool.CachedPageIDs() {
			fmt.Fprintf(s.out, "  %s\n", pid)
		}
		return false, nil
	}
	return false, fmt.Errorf("unknown command %q", cmd)
}

// close aborts a transaction left open when the shell exits.
func (s *shell) close(ctx context.Context) error {
	if s.txn == nil {
		return nil
	}
	txn := s.txn
	s.txn = nil
	return txn.Abort(ctx)
}

// withTxn runs fn in the open transaction, or in a fresh one that commits on
// success and aborts on failure.
func (s *shell) withTxn(ctx context.Context, fn func(*engine.Txn) error) error {
	if s.txn != nil {
		return fn(s.txn)
	}
	txn := s.e.Begin()
	if err := fn(txn); err != nil {
		return multierr.Append(err, txn.Abort(ctx))
	}
	return txn.Commit(ctx)
}

func (s *shell) schema(table string) (*tuple.TupleDesc, error) {
	id, err := s.e.Catalog().TableID(table)
	if err != nil {
		return nil, err
	}
	file, err := s.e.Catalog().DBFile(id)
	if err != nil {
		return nil, err
	}
	return file.TupleDesc(), nil
}

func (s *shell) create(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: create <table> <name:type>...")
	}
	types := make([]tuple.Type, 0, len(args)-1)
	names := make([]string, 0, len(args)-1)
	for _, col := range args[1:] {
		name, typ, ok := strings.Cut(col, ":")
		if !ok {
			return fmt.Errorf("column %q: want name:type", col)
		}
		t, err := tuple.ParseType(typ)
		if err != nil {
			return err
		}
		names = append(names, name)
		types = append(types, t)
	}
	if _, err := s.e.CreateTable(args[0], tuple.NewTupleDesc(types, names)); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "created %s\n", args[0])
	return nil
}

func (s *shell) insert(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: insert <table> <value>...")
	}
	td, err := s.schema(args[0])
	if err != nil {
		return err
	}
	if len(args)-1 != td.NumFields() {
		return fmt.Errorf("%s has %d fields, got %d values", args[0], td.NumFields(), len(args)-1)
	}
	fields := make([]tuple.Field, td.NumFields())
	for i, raw := range args[1:] {
		if fields[i], err = tuple.ParseField(td.Types[i], raw); err != nil {
			return err
		}
	}
	return s.withTxn(ctx, func(txn *engine.Txn) error {
		t, err := txn.Insert(ctx, args[0], fields...)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "inserted %s at %s slot %d\n", t, t.RecordID.PageID, t.RecordID.Slot)
		return nil
	})
}

// matcher builds a row filter from "field op value" words; no words match all.
func matcher(td *tuple.TupleDesc, words []string) (func(*tuple.Tuple) (bool, error), error) {
	if len(words) == 0 {
		return func(*tuple.Tuple) (bool, error) { return true, nil }, nil
	}
	field, op, v, err := parsePredicate(td, strings.Join(words, " "))
	if err != nil {
		return nil, err
	}
	return func(t *tuple.Tuple) (bool, error) { return t.Fields[field].Compare(op, v) }, nil
}

func (s *shell) scan(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: scan <table> [field op value]")
	}
	td, err := s.schema(args[0])
	if err != nil {
		return err
	}
	match, err := matcher(td, args[1:])
	if err != nil {
		return err
	}
	return s.withTxn(ctx, func(txn *engine.Txn) error {
		n := 0
		err := txn.Scan(ctx, args[0], func(t *tuple.Tuple) error {
			ok, err := match(t)
			if err != nil || !ok {
				return err
			}
			n++
			fmt.Fprintln(s.out, t)
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%d rows\n", n)
		return nil
	})
}

func (s *shell) delete(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return errors.New("usage: delete <table> <field op value>")
	}
	td, err := s.schema(args[0])
	if err != nil {
		return err
	}
	match, err := matcher(td, args[1:])
	if err != nil {
		return err
	}
	return s.withTxn(ctx, func(txn *engine.Txn) error {
		var doomed []*tuple.Tuple
		err := txn.Scan(ctx, args[0], func(t *tuple.Tuple) error {
			ok, err := match(t)
			if ok {
				doomed = append(doomed, t)
			}
			return err
		})
		if err != nil {
			return err
		}
		for _, t := range doomed {
			if err := txn.Delete(ctx, t); err != nil {
				return err
			}
		}
		fmt.Fprintf(s.out, "deleted %d rows\n", len(doomed))
		return nil
	})
}

func (s *shell) stats(args []string) error {
	snap := s.e.Stats().Snapshot()
	if len(args) == 0 {
		for _, name := range sortedTables(snap) {
			if err := printStats(s.out, snap[name]); err != nil {
				return err
			}
		}
		return nil
	}
	ts, ok := snap[args[0]]
	if !ok {
		return fmt.Errorf("no statistics for %s, run analyze first", args[0])
	}
	if len(args) == 1 {
		return printStats(s.out, ts)
	}
	return printEstimate(s.out, ts, strings.Join(args[1:], " "))
}
