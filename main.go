package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tablesync/internal/app"
	"tablesync/internal/logger"
	"tablesync/internal/sync"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// .env is optional
	_ = godotenv.Load()
	logger.Init()
	defer logger.Close()

	fs := flag.NewFlagSet("tablesync", flag.ContinueOnError)
	jobPath := fs.String("job", os.Getenv("TABLESYNC_JOB"), "同步任务文件（JSON）")
	reportPath := fs.String("report", os.Getenv("TABLESYNC_REPORT"), "同步报告输出文件（.xlsx/.csv/.json/.md）")
	mode := fs.String("mode", "", "覆盖任务文件中的同步模式：analyze、insert_only、full_overwrite")
	dryRun := fs.Bool("dry-run", false, "只统计不写入")
	force := fs.Bool("force", false, "忽略插入/删除上限")
	debug := fs.Bool("debug", false, "在日志中输出 SQL")
	quiet := fs.Bool("quiet", false, "不显示进度条")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*jobPath) == "" {
		fmt.Fprintln(os.Stderr, "缺少同步任务文件：请使用 -job 或设置 TABLESYNC_JOB")
		return 2
	}

	config, err := loadJob(*jobPath)
	if err != nil {
		logger.Error(err, "读取同步任务失败：%s", *jobPath)
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *mode != "" {
		config.Mode = *mode
	}
	config.DryRun = config.DryRun || *dryRun
	config.Force = config.Force || *force
	config.Debug = config.Debug || *debug
	if config.Debug {
		logger.SetLevel(logger.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bar *progressbar.ProgressBar
	if !*quiet {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("同步"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
	}

	application := app.NewApp(func(event string, payload any) {
		switch e := payload.(type) {
		case sync.SyncProgressEvent:
			if bar != nil {
				bar.Describe(progressLabel(e))
				_ = bar.Set(e.Percent)
			}
		case sync.SyncLogEvent:
			if e.Level == "warn" || e.Level == "error" {
				if bar != nil {
					_ = bar.Clear()
				}
				fmt.Fprintf(os.Stderr, "[%s] %s\n", strings.ToUpper(e.Level), e.Message)
			}
		}
	})
	application.Startup(ctx)
	defer application.Shutdown(ctx)

	if strings.EqualFold(strings.TrimSpace(config.Mode), sync.ModeAnalyze) {
		qr := application.DataSyncAnalyze(config)
		finish(bar)
		if res, ok := qr.Data.(sync.SyncAnalyzeResult); ok {
			printAnalysis(res)
		} else {
			fmt.Fprintln(os.Stderr, qr.Message)
		}
		if !qr.Success {
			return 1
		}
		return 0
	}

	res := application.DataSync(config)
	finish(bar)
	printResult(res)

	if strings.TrimSpace(*reportPath) != "" {
		if qr := application.ExportReport(res, *reportPath, ""); !qr.Success {
			fmt.Fprintf(os.Stderr, "导出报告失败：%s\n", qr.Message)
			return 1
		}
		fmt.Printf("报告已写入 %s\n", *reportPath)
	}
	if !res.Success {
		return 1
	}
	return 0
}

// loadJob reads a JSON job file. Passwords may come from the environment
// so they stay out of the file.
func loadJob(path string) (sync.SyncConfig, error) {
	var config sync.SyncConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("读取任务文件失败：%w", err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("解析任务文件失败：%w", err)
	}
	if len(config.Tables) == 0 {
		return config, fmt.Errorf("任务文件未配置任何表：%s", path)
	}
	if pw := os.Getenv("TABLESYNC_SOURCE_PASSWORD"); pw != "" {
		config.SourceConfig.Password = pw
	}
	if pw := os.Getenv("TABLESYNC_TARGET_PASSWORD"); pw != "" {
		config.TargetConfig.Password = pw
	}
	return config, nil
}

func progressLabel(e sync.SyncProgressEvent) string {
	switch {
	case e.Table == "":
		return e.Stage
	case e.Rows > 0:
		return fmt.Sprintf("%s %s（%d 行）", e.Table, e.Stage, e.Rows)
	default:
		return fmt.Sprintf("%s %s", e.Table, e.Stage)
	}
}

func finish(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}

func printResult(res sync.SyncResult) {
	for _, t := range res.Tables {
		status := "OK"
		if t.Error != "" {
			status = "FAILED: " + t.Error
		}
		fmt.Printf("%-30s 读取=%d 插入=%d 删除=%d 提交=%d 耗时=%dms %s\n", t.Table, t.RowsRead, t.Inserted, t.Deleted, t.Commits, t.DurationMs, status)
	}
	fmt.Println(res.Message)
}

func printAnalysis(res sync.SyncAnalyzeResult) {
	for _, t := range res.Tables {
		fmt.Printf("%-30s 源=%d 目标=%d %s\n", t.Table, t.SourceRows, t.TargetRows, t.Message)
	}
	fmt.Println(res.Message)
}
