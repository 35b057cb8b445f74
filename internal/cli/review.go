package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"refcite/internal/tui"
)

func (a *app) newReviewCmd() *cobra.Command {
	var (
		doc  string
		refs []string
	)
	cmd := &cobra.Command{
		Use:   "review [reference files...]",
		Short: "Run the pipeline and browse every paragraph decision interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, _, err := a.execute(cmd.Context(), doc, append(refs, args...))
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(tui.New(report), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().StringVarP(&doc, "doc", "d", "", "draft document (plain text, blank-line separated paragraphs)")
	cmd.Flags().StringSliceVarP(&refs, "refs", "r", nil, "reference files or glob patterns (.txt, .md)")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}
