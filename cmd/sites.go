package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "Lists the configured sites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSCOPE\tCACHE DIR\tLABEL\tSEEDS")
			for _, site := range cfg.Sites {
				scope := string(site.Scope)
				if scope == "" {
					scope = "domain"
				}
				if site.PathPrefix != "" {
					scope += " " + site.PathPrefix
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					site.Name, scope, site.CacheDir(), site.Label(), strings.Join(site.Seeds, ","))
			}
			return w.Flush()
		},
	}
}
