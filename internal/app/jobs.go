package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

// Discover runs one discovery sweep and prints the oracles found.
func (a *App) Discover(ctx context.Context) error {
	be, closeBackend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	pool := a.newChainPool()
	defer pool.Close()

	disc, err := a.newDiscovery(pool, be.repo)
	if err != nil {
		return err
	}
	found, err := disc.SyncFromSources(ctx)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Fprintln(os.Stdout, "no capped oracles found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Network\tAddress\tDescription\tAsset\tMax Growth (bps)\tSnapshot Ratio\tActive")
	for _, o := range found {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%s\t%t\n",
			o.Network, o.Address, sanitizeInline(o.Description), o.AssetAddress,
			o.MaxYearlyGrowthBps, o.SnapshotRatio.String(), o.IsActive)
	}
	return writer.Flush()
}

// Collect runs a single collection tick against the active oracles.
func (a *App) Collect(ctx context.Context) error {
	be, closeBackend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	pool := a.newChainPool()
	defer pool.Close()

	alerts, closeAlerts, err := a.newAlertService(ctx, be.repo)
	if err != nil {
		return err
	}
	defer closeAlerts()

	summary, err := a.newCollector(pool, be.repo, alerts).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "tick %s: %d oracles, %d ok, %d failed, %d alerts\n",
		summary.TickID, summary.Oracles, summary.Succeeded, summary.Failed, summary.Alerts)
	return nil
}
