package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"refcite/internal/citation"
	"refcite/internal/document"
	"refcite/internal/references"
)

func (a *app) newFinalizeCmd() *cobra.Command {
	var in, out, metadataPath, style string
	cmd := &cobra.Command{
		Use:     "finalize",
		Short:   "Resolve citation markers into styled citations and a reference list",
		Example: `  refcite finalize --in marked.txt --out cited.txt --metadata refs.yaml --style IEEE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if style == "" {
				style = a.cfg.Citation.Style
			}
			st, err := citation.ParseStyle(style)
			if err != nil {
				return err
			}
			catalog, err := references.LoadMetadata(metadataPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read marked document: %w", err)
			}
			text := string(data)
			cited := document.CitedReferences(text)
			for _, id := range cited {
				if _, ok := catalog[id]; !ok {
					a.logger.Warn("no metadata for reference, using defaults", zap.String("reference_id", id))
				}
			}
			if err := writeOutput(cmd.OutOrStdout(), out, document.Finalize(text, st, catalog)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d references resolved in %s style\n", headerText("refcite"), len(cited), st)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "document with [[cite:...]] markers, as written by 'refcite run'")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the cited document here instead of stdout")
	cmd.Flags().StringVarP(&metadataPath, "metadata", "m", "", "YAML or JSON file mapping reference ids to authors, year, title, source")
	cmd.Flags().StringVarP(&style, "style", "s", "", "citation style: APA, IEEE or MLA (default from config)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
