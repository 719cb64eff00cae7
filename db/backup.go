package db

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const backupFileExt = ".bak"

// Backup copies the SQLite file at src into dir before a destructive reset,
// then prunes all but the newest max backups. It returns the backup path, or
// "" when src does not exist yet. An empty dir means next to src.
func Backup(src, dir string, max int, log *zap.Logger) (string, error) {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	log.Info("existing database file found", zap.String("path", src), zap.Int64("bytes", info.Size()))

	if dir == "" {
		dir = filepath.Dir(src)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	backupPath := filepath.Join(dir, fmt.Sprintf("%s.%s%s", filepath.Base(src), time.Now().Format("20060102-150405.000"), backupFileExt))
	if err := copyFile(src, backupPath, log); err != nil {
		return "", fmt.Errorf("failed to create DB backup: %w", err)
	}
	log.Info("existing database backed up", zap.String("backup", backupPath))

	pruneOldBackups(dir, filepath.Base(src), max, log)
	return backupPath, nil
}

func copyFile(src, dst string, log *zap.Logger) error {
	sourceFileStat, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !sourceFileStat.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if err := source.Close(); err != nil {
			log.Warn("failed to close file", zap.String("path", src), zap.Error(err))
		}
	}()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if err := destination.Close(); err != nil {
			log.Warn("failed to close file", zap.String("path", dst), zap.Error(err))
		}
	}()

	_, err = destination.ReadFrom(source)
	return err
}

func pruneOldBackups(dir, base string, max int, log *zap.Logger) {
	prefix := base + "."
	files, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("failed to read backup directory", zap.String("dir", dir), zap.Error(err))
		return
	}

	var backups []string
	for _, f := range files {
		if strings.HasPrefix(f.Name(), prefix) && strings.HasSuffix(f.Name(), backupFileExt) {
			backups = append(backups, filepath.Join(dir, f.Name()))
		}
	}

	if max <= 0 || len(backups) <= max {
		return
	}

	sort.Strings(backups)
	for _, file := range backups[:len(backups)-max] {
		if err := os.Remove(file); err != nil {
			log.Warn("failed to remove old backup", zap.String("path", file), zap.Error(err))
		} else {
			log.Info("removed old backup", zap.String("path", file))
		}
	}
}
