package main

import (
	"fmt"
	"os"

	"casetrack-backend/services/tracker"

	"github.com/jedib0t/go-pretty/v6/table"
)

func printSummary(report tracker.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Case", report.Record.CaseNumber},
		{"Status", report.Record.Status},
		{"Origin", report.Origin.String()},
		{"State", string(report.State)},
	})
	if report.Record.FormType != "" {
		t.AppendRow(table.Row{"Form", report.Record.FormType})
	}
	if report.Record.LastUpdated != nil {
		t.AppendRow(table.Row{"Last Updated", report.Record.LastUpdated.Format("2006-01-02")})
	}
	if est := report.Estimate; est != nil {
		t.AppendRows([]table.Row{
			{"Queue Position", fmt.Sprintf("%d of %d", est.Position, est.TotalApplications)},
			{"Estimated Date", est.Date.Format("2006-01-02")},
			{"Days Remaining", est.DaysRemaining},
			{"Confidence", string(est.Confidence)},
			{"Progress", fmt.Sprintf("%.1f%%", est.ProgressPercent())},
		})
	}
	t.Render()
}
