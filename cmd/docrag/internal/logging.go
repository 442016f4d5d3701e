package internal

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogDirEnv overrides the log directory. "off" keeps logs on stderr only.
const LogDirEnv = "DOCRAG_LOG_DIR"

// maxLogFiles is how many log files each subcommand keeps
const maxLogFiles = 20

// LogDir returns the directory run logs are written to
func LogDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(LogDirEnv)); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".docrag", "logs"), nil
}

// SetupLogging 把子命令的日志同时写到 stderr 和一个独立的运行日志文件，
// 并清理该子命令较旧的日志文件。返回日志文件路径，关闭文件日志时为空。
func SetupLogging(subcommand string) (string, error) {
	dir, err := LogDir()
	if err != nil {
		return "", err
	}
	if dir == "off" {
		log.SetOutput(os.Stderr)
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	prefix := "docrag-" + subcommand + "-"
	filename := fmt.Sprintf("%s%s-%d.log", prefix, time.Now().Format("20060102-150405"), os.Getpid())
	logPath := filepath.Join(dir, filename)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}

	log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	log.Printf("docrag %s %s, log file: %s", Version, subcommand, logPath)

	if err := pruneLogs(dir, prefix, maxLogFiles); err != nil {
		log.Printf("Warning: failed to prune old logs: %v", err)
	}
	return logPath, nil
}

// pruneLogs removes the oldest prefix*.log files beyond keep.
// File names carry a sortable timestamp right after the prefix.
func pruneLogs(dir, prefix string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".log") {
			names = append(names, name)
		}
	}
	if len(names) <= keep {
		return nil
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
