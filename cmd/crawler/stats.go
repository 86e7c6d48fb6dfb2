package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/eratner15/tariff-engineer/features/job"
	"github.com/eratner15/tariff-engineer/features/ruling"
)

type corpusStats struct {
	Rulings    int  `json:"rulings"`
	Embedded   int  `json:"embedded"`
	FailedJobs int  `json:"failed_jobs"`
	Vectors    *int `json:"vectors,omitempty"`
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print corpus counts as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, deps, err := connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			repo := ruling.NewPostgresRepo(deps.DB)
			var out corpusStats
			if out.Rulings, err = repo.Count(ctx); err != nil {
				return err
			}
			if out.Embedded, err = repo.CountEmbedded(ctx); err != nil {
				return err
			}
			if out.FailedJobs, err = job.NewPostgresRepo(deps.DB).Count(ctx); err != nil {
				return err
			}
			if deps.VectorStore != nil {
				if n, err := deps.VectorStore.CountVectors(ctx); err == nil {
					out.Vectors = &n
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
