package injector

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/retroenv/retrogolib/log"
)

const (
	// DefaultMaxBackups is the number of backups kept per ROM.
	DefaultMaxBackups = 10
	// DefaultBackupDirName is the backup directory created next to the ROM
	// if no directory is configured.
	DefaultBackupDirName = "backups"

	backupInfix     = "_backup_"
	timestampLayout = "20060102_150405.000000"
)

// BackupManager creates timestamped copies of ROM files before they get
// modified.
type BackupManager struct {
	logger     *log.Logger
	dir        string
	maxBackups int
	now        func() time.Time
}

// NewBackupManager returns a backup manager that stores backups in dir. An
// empty dir stores backups in a directory next to each ROM.
func NewBackupManager(logger *log.Logger, dir string, maxBackups int) *BackupManager {
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}
	return &BackupManager{
		logger:     logger,
		dir:        dir,
		maxBackups: maxBackups,
		now:        time.Now,
	}
}

func (b *BackupManager) backupDir(romPath string) string {
	if b.dir != "" {
		return b.dir
	}
	return filepath.Join(filepath.Dir(romPath), DefaultBackupDirName)
}

func splitName(romPath string) (stem, ext string) {
	base := filepath.Base(romPath)
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

// Create copies the ROM file into the backup directory and removes the
// oldest backups of the ROM that exceed the maximum count. It returns the
// path of the backup.
func (b *BackupManager) Create(romPath string) (string, error) {
	dir := b.backupDir(romPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	stem, ext := splitName(romPath)
	timestamp := strings.ReplaceAll(b.now().Format(timestampLayout), ".", "_")
	backupPath := filepath.Join(dir, stem+backupInfix+timestamp+ext)

	if err := copyFile(romPath, backupPath); err != nil {
		return "", fmt.Errorf("creating backup of '%s': %w", romPath, err)
	}
	b.logger.Info("Created ROM backup", log.String("path", backupPath))

	b.prune(romPath)
	return backupPath, nil
}

// List returns the backups of the ROM file, newest first.
func (b *BackupManager) List(romPath string) ([]string, error) {
	stem, ext := splitName(romPath)
	pattern := filepath.Join(b.backupDir(romPath), stem+backupInfix+"*"+ext)
	backups, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	// the timestamp layout sorts chronologically
	slices.Sort(backups)
	slices.Reverse(backups)
	return backups, nil
}

// Restore copies a backup over the ROM file.
func (b *BackupManager) Restore(backupPath, romPath string) error {
	if err := copyFile(backupPath, romPath); err != nil {
		return fmt.Errorf("restoring backup '%s': %w", backupPath, err)
	}
	b.logger.Info("Restored ROM backup", log.String("backup", backupPath), log.String("rom", romPath))
	return nil
}

func (b *BackupManager) prune(romPath string) {
	backups, err := b.List(romPath)
	if err != nil {
		b.logger.Warn("Failed to list backups", log.Err(err))
		return
	}
	if len(backups) <= b.maxBackups {
		return
	}

	for _, old := range backups[b.maxBackups:] {
		if err := os.Remove(old); err != nil {
			b.logger.Warn("Failed to remove old backup", log.String("path", old), log.Err(err))
			continue
		}
		b.logger.Debug("Removed old backup", log.String("path", old))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	return nil
}
