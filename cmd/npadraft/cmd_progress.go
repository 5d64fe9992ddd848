package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/templates"
)

type sectionReport struct {
	ID       string                `json:"id"`
	Label    string                `json:"label"`
	Progress draft.SectionProgress `json:"progress"`
	Percent  int                   `json:"percent"`
	Appendix bool                  `json:"appendix"`
}

type progressReport struct {
	ID       string                 `json:"id"`
	Title    string                 `json:"title"`
	Progress draft.DocumentProgress `json:"progress"`
	Percent  int                    `json:"percent"`
	Sections []sectionReport        `json:"sections"`
	Issues   []draft.Issue          `json:"issues"`
}

func buildProgressReport(doc *draft.Document) progressReport {
	nav := draft.NewNavigator(doc)
	flags := nav.BoundaryFlags()
	progress := draft.ProgressOfDocument(doc)

	report := progressReport{
		ID:       doc.ID,
		Title:    doc.Title,
		Progress: progress,
		Percent:  progress.Percent(),
		Sections: make([]sectionReport, 0, len(doc.Sections)),
		Issues:   draft.IssuesOf(doc),
	}
	for i := range doc.Sections {
		p := draft.ProgressOf(&doc.Sections[i])
		report.Sections = append(report.Sections, sectionReport{
			ID:       doc.Sections[i].ID,
			Label:    doc.Sections[i].Label,
			Progress: p,
			Percent:  p.Percent(),
			Appendix: flags[i],
		})
	}
	return report
}

func newProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <template.yaml>",
		Short: "Report completion and missing required fields of a template or draft file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := templates.LoadFile(args[0])
			if err != nil {
				return err
			}
			report := buildProgressReport(&doc)

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Fprintf(out, "%s (%s)\n", report.Title, report.ID)
			fmt.Fprintf(out, "%d of %d fields complete (%d%%)\n\n", report.Progress.Filled, report.Progress.Total, report.Percent)
			for _, s := range report.Sections {
				if s.Appendix {
					fmt.Fprintln(out, "-- appendices --")
				}
				fmt.Fprintf(out, "  %-10s %-30s %3d%%  %d/%d\n", s.ID, s.Label, s.Percent, s.Progress.Filled, s.Progress.Total)
			}
			if len(report.Issues) == 0 {
				fmt.Fprintln(out, "\nAll required fields are filled")
				return nil
			}
			fmt.Fprintf(out, "\nMissing required fields (%d):\n", len(report.Issues))
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "  [%s] %s (%s)\n", issue.SectionID, issue.Label, issue.Key)
			}
			return nil
		},
	}
}
