package diagnostics

import (
	"bytes"
	"fmt"

	"github.com/anjanpoonacha/tvchart/pool"
	"github.com/olekukonko/tablewriter"
)

// FetchReport renders records as an ASCII table, grounded on the teacher
// repo's ninjabot.go summary printer: one tablewriter.Writer into a
// bytes.Buffer, one row per input record.
func FetchReport(records []Record) string {
	buffer := &bytes.Buffer{}
	table := tablewriter.NewWriter(buffer)
	table.SetHeader([]string{"Symbol", "Bars", "Resolve (ms)", "Series (ms)", "Studies (ms)", "Total (ms)", "Error"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)

	var failures int
	for _, r := range records {
		errCell := "-"
		if r.Error != "" {
			errCell = r.Error
			failures++
		}
		table.Append([]string{
			r.Symbol,
			fmt.Sprintf("%d", r.BarsCount),
			fmt.Sprintf("%d", r.Timing.ResolveSymbol),
			fmt.Sprintf("%d", r.Timing.CreateSeries),
			fmt.Sprintf("%d", r.Timing.CreateStudies),
			fmt.Sprintf("%d", r.Timing.Total),
			errCell,
		})
	}
	table.SetFooter([]string{"", "", "", "", "", "failures", fmt.Sprintf("%d", failures)})
	table.Render()
	return buffer.String()
}

// SlotReport renders a pool's slot table (symbol, in-use, last-used,
// request count) as ASCII, the debug dump SPEC_FULL.md's domain-stack
// section describes for olekukonko/tablewriter.
func SlotReport(slots []pool.SlotInfo) string {
	buffer := &bytes.Buffer{}
	table := tablewriter.NewWriter(buffer)
	table.SetHeader([]string{"Slot", "Symbol", "In Use", "Last Used", "Requests"})

	for _, s := range slots {
		symbol := s.Symbol
		if symbol == "" {
			symbol = "-"
		}
		table.Append([]string{
			fmt.Sprintf("%d", s.Index),
			symbol,
			fmt.Sprintf("%v", s.Busy),
			s.LastUsed.Format("15:04:05"),
			fmt.Sprintf("%d", s.RequestCount),
		})
	}
	table.Render()
	return buffer.String()
}
