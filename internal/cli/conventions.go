package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forPelevin/phasesplit/internal/domain/convention"
)

func newConventionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conventions",
		Short: "List the known annotation conventions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, err := convention.NewRegistry(cfg.Conventions)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTAG\tSHAPE\tLAYOUT")
			for _, name := range reg.Names() {
				c, _ := reg.Get(name)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Tag, c.Shape, c.Layout)
			}
			return w.Flush()
		},
	}
}
