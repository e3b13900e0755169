package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"sort"
	"strings"

	"github.com/sushant-115/gojostore/core/engine"
	"github.com/sushant-115/gojostore/core/optimizer/statistics"
	"github.com/sushant-115/gojostore/core/tuple"
	"go.uber.org/multierr"
)

var (
	peopleTable = "people"
	peopleDesc  = tuple.NewTupleDesc([]tuple.Type{tuple.IntType, tuple.IntType, tuple.StringType}, []string{"id", "age", "city"})
	cities      = []string{"amsterdam", "berlin", "chennai", "denver", "lisbon", "nairobi", "osaka", "quito", "seoul", "tunis"}
)

type AnalyzeCmd struct {
	Rows  int      `help:"Rows to load before analyzing; 0 analyzes what the store already holds" default:"5000"`
	Batch int      `help:"Rows per loading transaction" default:"500"`
	Seed  uint64   `help:"Random seed for generated rows" default:"1"`
	Where []string `help:"Predicate to estimate, as 'field op value' (repeatable)"`
}

func (c *AnalyzeCmd) Run(ctx context.Context, g *Globals) (err error) {
	e, err := g.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, e.Close(context.Background())) }()

	if _, err := e.CreateTable(peopleTable, peopleDesc); err != nil {
		return err
	}
	if err := loadPeople(ctx, e, c.Rows, c.Batch, c.Seed); err != nil {
		return err
	}
	if err := e.Analyze(ctx); err != nil {
		return err
	}
	ts, ok := e.Stats().Get(peopleTable)
	if !ok {
		return fmt.Errorf("no statistics for %s", peopleTable)
	}
	if err := printStats(os.Stdout, ts); err != nil {
		return err
	}
	for _, where := range c.Where {
		if err := printEstimate(os.Stdout, ts, where); err != nil {
			return err
		}
	}
	return nil
}

// loadPeople inserts rows generated from seed, batch rows per transaction.
func loadPeople(ctx context.Context, e *engine.Engine, rows, batch int, seed uint64) error {
	if batch <= 0 {
		batch = rows
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for start := 0; start < rows; start += batch {
		txn := e.Begin()
		for i := start; i < min(start+batch, rows); i++ {
			age := 18 + rng.IntN(62)
			city := cities[rng.IntN(len(cities))]
			if _, err := txn.Insert(ctx, peopleTable, tuple.NewIntField(int64(i)), tuple.NewIntField(int64(age)), tuple.NewStringField(city)); err != nil {
				return multierr.Append(fmt.Errorf("load row %d: %w", i, err), txn.Abort(ctx))
			}
		}
		if err := txn.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

func printStats(w io.Writer, ts *statistics.TableStats) error {
	td := ts.TupleDesc()
	fmt.Fprintf(w, "table %s: %d tuples on %d pages, scan cost %.0f\n", ts.TableName, ts.NumTuples, ts.NumPages, ts.EstimateScanCost())
	for i := 0; i < td.NumFields(); i++ {
		h, err := ts.Histogram(i)
		if err != nil {
			return err
		}
		eq, err := ts.AvgSelectivity(i, tuple.Equals)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %-8s %-6s avg(=) %.4f  %s\n", td.Names[i], td.Types[i], eq, h)
	}
	return nil
}

// parsePredicate reads "field op value" against td.
func parsePredicate(td *tuple.TupleDesc, s string) (int, tuple.Op, tuple.Field, error) {
	parts := strings.Fields(s)
	if len(parts) < 3 {
		return 0, 0, nil, fmt.Errorf("predicate %q: want 'field op value'", s)
	}
	field, err := td.FieldIndex(parts[0])
	if err != nil {
		return 0, 0, nil, err
	}
	op, err := tuple.ParseOp(parts[1])
	if err != nil {
		return 0, 0, nil, err
	}
	v, err := tuple.ParseField(td.Types[field], strings.Join(parts[2:], " "))
	if err != nil {
		return 0, 0, nil, err
	}
	return field, op, v, nil
}

func printEstimate(w io.Writer, ts *statistics.TableStats, where string) error {
	field, op, v, err := parsePredicate(ts.TupleDesc(), where)
	if err != nil {
		return err
	}
	sel, err := ts.EstimateSelectivity(field, op, v)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s %s: selectivity %.4f, ~%d rows\n", ts.TupleDesc().Names[field], op, v, sel, ts.EstimateCardinality(sel))
	return nil
}

func sortedTables(snap map[string]*statistics.TableStats) []string {
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
