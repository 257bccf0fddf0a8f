package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkpipe/internal/seeds"
)

func newExtractCmd() *cobra.Command {
	var (
		urls    []string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "extract [seed-file ...]",
		Short: "Extract links from seed pages",
		Long: `Reads seed URLs, one per line, from the given files ("-" for stdin) and
from --url flags, fetches every seed and writes each link found to the
output file in the order it is produced.`,
		Example: `  linkpipe extract seeds.txt
  cat seeds.txt | linkpipe extract - --out -
  linkpipe extract --url https://example.com/ --url https://example.org/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			list, err := seeds.Gather(cmd.InOrStdin(), args, urls)
			if err != nil {
				return fmt.Errorf("gather seeds: %w", err)
			}

			res, err := appInstance.Extract(cmd.Context(), list, outPath)
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			if res.Report.IdleTimedOut {
				appInstance.Logger().Warn("output may be truncated by the idle timeout", zap.String("output", res.Path))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&urls, "url", nil, "seed URL (repeatable)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", `output file, "-" for stdout (default from output.file)`)
	return cmd
}
