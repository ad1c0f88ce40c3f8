package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestErrorChain_FollowsWrappedErrors(t *testing.T) {
	root := errors.New("connection refused")
	err := fmt.Errorf("打开数据库连接失败：%w", root)

	got := ErrorChain(err)
	want := "打开数据库连接失败：connection refused -> connection refused"
	if got != want {
		t.Fatalf("错误链不符合预期：\nGOT:  %s\nWANT: %s", got, want)
	}
}

func TestErrorChain_FollowsJoinedErrors(t *testing.T) {
	kind := errors.New("写入失败")
	cause := errors.New("duplicate key")
	err := errors.Join(kind, cause)

	got := ErrorChain(err)
	if !strings.Contains(got, "写入失败") || !strings.Contains(got, "duplicate key") {
		t.Fatalf("joined 错误链缺少组成部分：%s", got)
	}
}

func TestErrorChain_Nil(t *testing.T) {
	if got := ErrorChain(nil); got != "" {
		t.Fatalf("nil 错误应返回空串，实际=%q", got)
	}
}

func TestCleanupOldLogs_KeepsNewestBackups(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < logRotateMaxBackups+3; i++ {
		name := fmt.Sprintf("%s20240101-0000%02d.log", logFilePrefix, i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("写入测试日志失败：%v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "other.log"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入测试日志失败：%v", err)
	}

	cleanupOldLogs(dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败：%v", err)
	}
	rotated := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), logFilePrefix) {
			rotated++
		}
	}
	if rotated != logRotateMaxBackups {
		t.Fatalf("期望保留 %d 个轮转日志，实际=%d", logRotateMaxBackups, rotated)
	}
	if _, err := os.Stat(filepath.Join(dir, "other.log")); err != nil {
		t.Fatalf("非轮转日志不应被删除：%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, logFilePrefix+"20240101-000000.log")); !os.IsNotExist(err) {
		t.Fatalf("最旧的轮转日志应被删除")
	}
}

func TestRotatingFile_RotatesPastLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, logFileName)
	r, err := openRotatingFile(dir, path, 16)
	if err != nil {
		t.Fatalf("打开日志文件失败：%v", err)
	}
	defer r.Close()

	for _, line := range []string{"first-line\n", "second-line\n"} {
		if _, err := r.Write([]byte(line)); err != nil {
			t.Fatalf("写入日志失败：%v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "second-line\n" {
		t.Fatalf("轮转后当前日志只应包含新内容：%q %v", data, err)
	}
	entries, _ := os.ReadDir(dir)
	backups := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), logFilePrefix) {
			backups++
		}
	}
	if backups != 1 {
		t.Fatalf("期望 1 个轮转日志，实际=%d", backups)
	}
}

func TestSetLevel_DropsLowerLevels(t *testing.T) {
	t.Setenv(envLogDir, t.TempDir())
	var buf strings.Builder
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetLevel(LevelDebug)
		SetOutput(os.Stderr)
	})

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "[警告] shown 2") {
		t.Fatalf("级别过滤不符合预期：%q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if l, ok := ParseLevel(" WARNING "); !ok || l != LevelWarn {
		t.Fatalf("应识别 warning：%v %v", l, ok)
	}
	if _, ok := ParseLevel("verbose"); ok {
		t.Fatalf("未知级别不应被识别")
	}
}
