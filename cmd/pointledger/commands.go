package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/pointledger/core"
	"github.com/yourusername/pointledger/pkg/pointledger"
)

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create [key] [value] [reason]",
		Short: "Creates a key with an initial value",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.ledger()
			if err != nil {
				return err
			}
			value, err := core.ParseValue(args[1], "create")
			if err != nil {
				return err
			}
			entry, err := l.Create(cmd.Context(), args[0], value, optional(args, 2))
			if err != nil {
				return err
			}
			return a.print(entry)
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Prints the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.ledger()
			if err != nil {
				return err
			}
			entry, err := l.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(entry)
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add [key] [change]",
		Short: "Adds a (possibly negative) change to a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.ledger()
			if err != nil {
				return err
			}
			change, err := core.ParseChange(args[1], "add")
			if err != nil {
				return err
			}
			result, err := l.Add(cmd.Context(), args[0], change)
			if err != nil {
				return err
			}
			return a.print(result)
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [key] [reason]",
		Short: "Deletes a key, tombstoning it when the ledger logs",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.ledger()
			if err != nil {
				return err
			}
			result, err := l.Delete(cmd.Context(), args[0], optional(args, 1))
			if err != nil {
				return err
			}
			return a.print(result)
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lists pairs in ascending score order",
		Long: `Lists pairs in ascending score order. --low and --high accept a number,
"-inf" or "+inf"; prefix with "(" to exclude the bound.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.ledger()
			if err != nil {
				return err
			}
			low, err := parseBound(a.v.GetString("low"))
			if err != nil {
				return fmt.Errorf("--low: %w", err)
			}
			high, err := parseBound(a.v.GetString("high"))
			if err != nil {
				return fmt.Errorf("--high: %w", err)
			}
			rng := core.Range{Low: low, High: high}

			scan := l.ScanPairs
			if a.v.GetBool("raw") {
				scan = l.ScanRawPairs
			}
			pairs := make([]core.Pair, 0)
			for p, err := range scan(cmd.Context(), rng) {
				if err != nil {
					return err
				}
				pairs = append(pairs, p)
			}
			return a.print(pairs)
		},
	}
	cmd.Flags().String("low", "-inf", wrap("Lower score bound"))
	cmd.Flags().String("high", "+inf", wrap("Upper score bound"))
	cmd.Flags().Bool("raw", false, wrap("Print keys as stored, without decoding"))
	return cmd
}

func newOutOfRangeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "out-of-range",
		Short: "Lists pairs below the minimum or above the maximum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.ledger()
			if err != nil {
				return err
			}
			below, err := l.GetAllPairs(cmd.Context(), l.BelowMinRange())
			if err != nil {
				return err
			}
			above, err := l.GetAllPairs(cmd.Context(), l.AboveMaxRange())
			if err != nil {
				return err
			}
			return a.print(map[string][]core.Pair{"below_min": below, "above_max": above})
		},
	}
}

func newReapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reap [reason]",
		Short: "Removes every key below the minimum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.ledger()
			if err != nil {
				return err
			}
			n, err := l.Reap(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(map[string]any{"ledger": l.Name(), "reaped": n})
		},
	}
}

func newWSumCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wsum [destination] [ledger=weight]...",
		Short: "Stores the weighted sum of ledgers into destination",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			weights, err := parseWeights(args[1:])
			if err != nil {
				return err
			}
			result, err := a.registry.WSum(cmd.Context(), args[0], weights)
			if err != nil {
				return err
			}
			return a.print(result)
		},
	}
}

func newReasonCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reason [key]",
		Short: "Prints the creation and deletion records of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.ledger()
			if err != nil {
				return err
			}
			created, err := l.GetCreateReason(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			deleted, err := l.GetDeleteReason(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(map[string]pointledger.Reason{"create": created, "delete": deleted})
		},
	}
}

func newLedgersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ledgers",
		Short: "Lists the configured ledgers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range a.registry.Names() {
				l, _ := a.registry.Ledger(name)
				b := l.Bounds()
				fmt.Fprintf(a.out, "%s\t[%s, %s]\tlog=%t\n", name,
					core.FormatScore(b.Min), core.FormatScore(b.Max), l.LoggingEnabled())
			}
			return nil
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pointledger",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "pointledger v%s\n", Version)
		},
	}
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// parseBound reads "5", "(5", "-inf" or "+inf"
func parseBound(raw string) (core.Bound, error) {
	exclusive := strings.HasPrefix(raw, "(")
	v, err := strconv.ParseFloat(strings.TrimPrefix(raw, "("), 64)
	if err != nil || math.IsNaN(v) {
		return core.Bound{}, fmt.Errorf("invalid bound %q", raw)
	}
	return core.Bound{Value: v, Exclusive: exclusive && !math.IsInf(v, 0)}, nil
}

// parseWeights reads "name=weight" arguments
func parseWeights(args []string) (map[string]float64, error) {
	weights := make(map[string]float64, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q (expected ledger=weight)", arg)
		}
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", arg, err)
		}
		weights[name] = w
	}
	return weights, nil
}
