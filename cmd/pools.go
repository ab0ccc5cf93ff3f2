package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newPoolsCmd creates and configures the 'pools' subcommand, a provisioning
// diagnostic. Pool provisioning already happened during application startup;
// this command reports what came back.
func newPoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "Provisions the proxy pools and prints their status",
		Long: `Provisions proxy pools from the vendor API using the configured topology
and prints each pool's region, credential count and health counters, along
with the egress whitelist sent to the vendor.`,
		RunE: runPoolsCommand,
	}
}

func runPoolsCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pools := appInstance.Pools()
	if pools == nil {
		fmt.Fprintln(out, "proxy pools are disabled (proxy.enabled=false)")
		return nil
	}

	if wl := pools.Whitelist(); len(wl) > 0 {
		fmt.Fprintf(out, "egress whitelist: %s\n\n", strings.Join(wl, ", "))
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POOL\tREGION\tACTIVE\tCREDS\tOK\tERR\tCONSEC\tAVG MS")
	for _, h := range pools.Stats() {
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%d\t%d\t%d\t%d\n",
			h.ID, h.Region, h.Active, h.Credentials,
			h.SuccessCount, h.ErrorCount, h.ConsecutiveErrors, h.AvgLatencyMs)
	}
	return w.Flush()
}
