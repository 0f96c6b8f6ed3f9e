package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tierwise/pkg/ledger"
	"github.com/pario-ai/tierwise/pkg/ledger/sqlite"
)

func newStatsCmd(load configLoader) *cobra.Command {
	var (
		dbPath string
		since  string
		until  string
		tier   string
		tenant string
		byDay  bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics from the ledger database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = cfg.Ledger.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no ledger database: set ledger.db_path or pass --db")
			}

			q := map[string]string{"since": since, "until": until, "tier": tier, "tenant": tenant}
			f, err := ledger.ParseFilter(func(k string) string { return q[k] }, time.Now())
			if err != nil {
				return err
			}

			store, err := sqlite.New(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			recs, err := store.Query(ctx, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No usage data found.")
				return nil
			}
			st := ledger.Aggregate(recs)

			fmt.Fprintf(out, "Requests: %d  cached: %d  failed: %d  hit rate: %.1f%%\n",
				st.Requests, st.Cached, st.Failures, st.CacheHitRate*100)
			fmt.Fprintf(out, "Tokens:   %d in, %d out  cost: $%.4f  avg latency: %.0f ms\n\n",
				st.InputTokens, st.OutputTokens, st.Cost, st.AvgDurationMs)

			rows, err := store.Summary(ctx, f)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIER\tMODEL\tREQUESTS\tCACHED\tINPUT\tOUTPUT\tCOST")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t$%.4f\n",
					r.Tier, r.Model, r.Requests, r.Cached, r.InputTokens, r.OutputTokens, r.Cost)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if !byDay {
				tiers := make([]string, 0, len(st.ByTier))
				for t := range st.ByTier {
					tiers = append(tiers, t)
				}
				sort.Strings(tiers)
				fmt.Fprintln(out)
				w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIER\tREQUESTS\tCACHED\tCOST")
				for _, t := range tiers {
					u := st.ByTier[t]
					fmt.Fprintf(w, "%s\t%d\t%d\t$%.4f\n", t, u.Requests, u.Cached, u.Cost)
				}
				return w.Flush()
			}

			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tREQUESTS\tCACHED\tINPUT\tOUTPUT\tCOST")
			for _, d := range st.ByDay {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t$%.4f\n",
					d.Day, d.Requests, d.Cached, d.InputTokens, d.OutputTokens, d.Cost)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "ledger database (default ledger.db_path)")
	cmd.Flags().StringVar(&since, "since", "", "start: YYYY-MM-DD, RFC 3339 or a duration like 24h")
	cmd.Flags().StringVar(&until, "until", "", "end, same formats as --since")
	cmd.Flags().StringVar(&tier, "tier", "", "fast or capable")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant identifier")
	cmd.Flags().BoolVar(&byDay, "by-day", false, "show the per-day rollup instead of per tier")
	return cmd
}
