package app

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tablesync/internal/connection"
	"tablesync/internal/logger"
	"tablesync/internal/sync"

	"github.com/xuri/excelize/v2"
)

var reportColumns = []string{"table", "targetTable", "mode", "rowsRead", "inserted", "deleted", "commits", "hitMaxInserts", "hitMaxDeletes", "durationMs", "error"}

func reportRecords(res sync.SyncResult) [][]string {
	records := make([][]string, 0, len(res.Tables))
	for _, t := range res.Tables {
		records = append(records, []string{
			t.Table,
			t.TargetTable,
			t.Mode,
			strconv.Itoa(t.RowsRead),
			strconv.Itoa(t.Inserted),
			strconv.Itoa(t.Deleted),
			strconv.Itoa(t.Commits),
			strconv.FormatBool(t.HitMaxInserts),
			strconv.FormatBool(t.HitMaxDeletes),
			strconv.FormatInt(t.DurationMs, 10),
			t.Error,
		})
	}
	return records
}

// ExportReport writes a sync result to filename. The format defaults to the
// file extension: xlsx, csv, json or md.
func (a *App) ExportReport(res sync.SyncResult, filename string, format string) connection.QueryResult {
	if strings.TrimSpace(filename) == "" {
		return connection.QueryResult{Success: false, Message: "导出文件名不能为空"}
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	}

	var err error
	switch format {
	case "xlsx":
		err = exportXLSX(res, filename)
	case "csv", "json", "md":
		err = exportText(res, filename, format)
	default:
		return connection.QueryResult{Success: false, Message: "Unsupported format: " + format}
	}
	if err != nil {
		logger.Error(err, "导出同步报告失败：文件=%s", filename)
		return connection.QueryResult{Success: false, Message: err.Error()}
	}
	return connection.QueryResult{Success: true, Message: "Export successful", Data: filename}
}

func exportXLSX(res sync.SyncResult, filename string) error {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet, logSheet = "同步结果", "日志"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("创建工作表失败：%w", err)
	}
	if err := writeSheetRow(f, summarySheet, 1, reportColumns); err != nil {
		return err
	}
	for i, record := range reportRecords(res) {
		if err := writeSheetRow(f, summarySheet, i+2, record); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(logSheet); err != nil {
		return fmt.Errorf("创建工作表失败：%w", err)
	}
	for i, line := range res.Logs {
		if err := writeSheetRow(f, logSheet, i+1, []string{line}); err != nil {
			return err
		}
	}

	if err := f.SaveAs(filename); err != nil {
		return fmt.Errorf("保存文件失败：%w", err)
	}
	return nil
}

func writeSheetRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &out); err != nil {
		return fmt.Errorf("写入工作表失败：%w", err)
	}
	return nil
}

func exportText(res sync.SyncResult, filename string, format string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	switch format {
	case "csv":
		f.Write([]byte{0xEF, 0xBB, 0xBF})
		csvWriter := csv.NewWriter(f)
		if err := csvWriter.Write(reportColumns); err != nil {
			return err
		}
		if err := csvWriter.WriteAll(reportRecords(res)); err != nil {
			return fmt.Errorf("写入 CSV 失败：%w", err)
		}
		return nil
	case "json":
		jsonEncoder := json.NewEncoder(f)
		jsonEncoder.SetIndent("", "  ")
		return jsonEncoder.Encode(res)
	default:
		fmt.Fprintf(f, "| %s |\n", strings.Join(reportColumns, " | "))
		seps := make([]string, len(reportColumns))
		for i := range seps {
			seps[i] = "---"
		}
		fmt.Fprintf(f, "| %s |\n", strings.Join(seps, " | "))
		for _, record := range reportRecords(res) {
			for i, s := range record {
				s = strings.ReplaceAll(s, "|", "\\|")
				record[i] = strings.ReplaceAll(s, "\n", "<br>")
			}
			fmt.Fprintf(f, "| %s |\n", strings.Join(record, " | "))
		}
		return nil
	}
}
