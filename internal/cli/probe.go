package cli

import (
	"context"
	"fmt"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var probePaths = []string{"/healthz", "/readyz", "/metrics", "/api/products"}

type probeResult struct {
	Path    string `json:"path"`
	Status  int    `json:"status"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

func (a *app) probeCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that a running storefront answers on its public endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			results, failed := a.probe(ctx)
			w := cmd.OutOrStdout()
			if a.jsonOut {
				if err := a.printJSON(w, results); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "Backend: %s\n", a.api())
				for _, r := range results {
					status := fmt.Sprint(r.Status)
					if r.Error != "" {
						status = "FAIL " + r.Error
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Path, status, r.Latency)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Overall probe timeout")
	return cmd
}

// probe checks every path concurrently. Results keep probePaths order.
func (a *app) probe(ctx context.Context) ([]probeResult, int) {
	c := a.client()
	results := make([]probeResult, len(probePaths))
	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range probePaths {
		g.Go(func() error {
			start := time.Now()
			status, err := c.Check(gctx, path)
			r := probeResult{Path: path, Status: status, Latency: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				r.Error = err.Error()
				mu.Lock()
				failed++
				mu.Unlock()
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results, failed
}
