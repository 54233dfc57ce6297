package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	stack "github.com/mod-net/stack"
)

func renderTable(headers []string, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range header {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func statusTable(sts []stack.Status) string {
	rows := make([][]string, 0, len(sts))
	for _, st := range sts {
		pid := "-"
		if st.PID > 0 {
			pid = strconv.Itoa(st.PID)
		}
		rows = append(rows, []string{
			st.Name,
			string(st.State),
			pid,
			yesNo(st.Healthy),
			yesNo(st.Singleton),
			st.Detail,
		})
	}
	return renderTable([]string{"SERVICE", "STATE", "PID", "HEALTHY", "SINGLETON", "DETAIL"}, rows)
}

func checkTable(results []stack.CheckResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Name, r.Target, yesNo(r.Healthy), r.Detail})
	}
	return renderTable([]string{"SERVICE", "TARGET", "HEALTHY", "DETAIL"}, rows)
}

func journalTable(sts []stack.Status, events map[string]stack.Event) string {
	rows := make([][]string, 0, len(sts))
	for _, st := range sts {
		ev, ok := events[st.Name]
		if !ok {
			rows = append(rows, []string{st.Name, "-", "", "", ""})
			continue
		}
		rows = append(rows, []string{
			st.Name,
			ev.State,
			yesNo(ev.Forced),
			ev.Detail,
			ev.At.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return renderTable([]string{"SERVICE", "LAST EVENT", "FORCED", "DETAIL", "AT"}, rows)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
