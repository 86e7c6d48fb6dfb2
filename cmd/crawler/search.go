package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eratner15/tariff-engineer/internal/retrieval"
)

func searchCmd() *cobra.Command {
	var (
		category string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search <description>",
		Short: "Rank stored rulings against a product description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, deps, err := connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			application, err := newApp(cfg, deps)
			if err != nil {
				return err
			}

			res := application.Retrieval.Rank(ctx, retrieval.Query{
				Text:     strings.Join(args, " "),
				Category: category,
			}, limit)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "override the detected product category")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of rulings to return (default from settings)")
	return cmd
}
