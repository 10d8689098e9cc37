package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"text/tabwriter"

	"tokentable/internal/domain"
	"tokentable/internal/format"
	"tokentable/internal/logger"
	"tokentable/internal/mockdata"
	"tokentable/internal/service"
	"tokentable/internal/simulator"
	"tokentable/internal/table"

	"github.com/spf13/cobra"
)

type snapshotOptions struct {
	seed     uint64
	ticks    int
	chains   []string
	verified bool
	trending bool
	minMcap  float64
	maxMcap  float64
	sort     string
	dir      string
	category string
}

func snapshotCmd() *cobra.Command {
	var o snapshotOptions

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the generated catalogue through the filter and sort",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnapshot(cmd.Context(), cmd.OutOrStdout(), o, cmd.Flags().Changed("min-mcap"), cmd.Flags().Changed("max-mcap"))
		},
	}

	f := cmd.Flags()
	f.Uint64Var(&o.seed, "seed", 1, "random seed for the catalogue and ticks")
	f.IntVar(&o.ticks, "ticks", 0, "simulator rounds to apply before printing")
	f.StringSliceVar(&o.chains, "chain", nil, "chains to keep (SOL, ETH, BSC)")
	f.BoolVar(&o.verified, "verified", false, "verified tokens only")
	f.BoolVar(&o.trending, "trending", false, "trending tokens only")
	f.Float64Var(&o.minMcap, "min-mcap", 0, "minimum market cap, inclusive")
	f.Float64Var(&o.maxMcap, "max-mcap", 0, "maximum market cap, inclusive")
	f.StringVar(&o.sort, "sort", "", "sort field (price, marketCap, volume24h, name, ...)")
	f.StringVar(&o.dir, "dir", "desc", "sort direction (asc|desc)")
	f.StringVar(&o.category, "category", "", "print a single section (new-pairs, final-stretch, migrated)")
	return cmd
}

func runSnapshot(ctx context.Context, w io.Writer, o snapshotOptions, minSet, maxSet bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	gen := mockdata.NewGenerator(rand.New(rand.NewPCG(o.seed, o.seed+1)))
	svc, err := service.NewTableService(logger.Nop(), table.NewStore(logger.Nop()), gen)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err = svc.LoadInitial(ctx); err != nil {
		return err
	}

	if o.ticks > 0 {
		sim, err := simulator.New(logger.Nop(), simulator.Config{}, svc, simulator.WithRand(rand.New(rand.NewPCG(o.seed+2, o.seed+3))))
		if err != nil {
			return err
		}
		for i := 0; i < o.ticks; i++ {
			sim.Tick(ctx)
		}
	}

	patch := domain.FilterPatch{}
	if len(o.chains) > 0 {
		chains := make([]domain.Chain, 0, len(o.chains))
		for _, c := range o.chains {
			chains = append(chains, domain.Chain(strings.ToUpper(strings.TrimSpace(c))))
		}
		patch.Chain = domain.Some(chains)
	}
	if o.verified {
		patch.Verified = domain.Some(true)
	}
	if o.trending {
		patch.Trending = domain.Some(true)
	}
	if minSet {
		patch.MinMarketCap = domain.Some(o.minMcap)
	}
	if maxSet {
		patch.MaxMarketCap = domain.Some(o.maxMcap)
	}
	if _, err = svc.SetFilter(patch); err != nil {
		return err
	}

	if o.sort != "" {
		if err = svc.SetSort(domain.Sort{Field: domain.SortField(o.sort), Direction: domain.Direction(o.dir)}); err != nil {
			return err
		}
	}

	categories := domain.Categories
	if o.category != "" {
		c := domain.Category(o.category)
		if !c.Valid() {
			return fmt.Errorf("%w: %q", service.ErrUnknownCategory, o.category)
		}
		categories = []domain.Category{c}
	}

	for i, c := range categories {
		toks, err := svc.Section(c)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err = printSection(w, c, toks); err != nil {
			return err
		}
	}
	return nil
}

func printSection(w io.Writer, c domain.Category, toks []domain.Token) error {
	fmt.Fprintln(w, format.Count(c.Title(), len(toks)))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tNAME\tCHAIN\tPRICE\t24H\tMCAP\tVOLUME\tLIQUIDITY\tHOLDERS\tAGE\tV\tT")
	for _, t := range toks {
		r := format.RowOf(t)
		trending := ""
		if t.Trending {
			trending = "🔥"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Symbol, t.Name, t.Chain, r.Display.Price, r.Display.PriceChange24h, r.Display.MarketCap,
			r.Display.Volume24h, r.Display.Liquidity, r.Display.Holders, t.Age, format.Verified(t.Verified), trending)
	}
	return tw.Flush()
}
