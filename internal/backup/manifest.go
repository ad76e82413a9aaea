package backup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Manifest is backup_info.json's exact field set (spec §6): written
// alongside every backup directory so a maintenance tool can inspect a
// backup without re-deriving its provenance from the filesystem.
type Manifest struct {
	BackupName     string  `json:"backup_name"`
	Timestamp      string  `json:"timestamp"`
	SourceDatabase string  `json:"source_database"`
	BackupPath     string  `json:"backup_path"`
	BackupSize     int64   `json:"backup_size"`
	FilesCount     int     `json:"files_count"`
	Backend        string  `json:"backend"`
	CreatedAt      float64 `json:"created_at"`
}

// writeManifest serializes a Manifest to <dir>/backup_info.json.
func writeManifest(dir string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "backup_info.json"), b, 0o644)
}

// readManifest reads backup_info.json back out of a backup directory.
func readManifest(dir string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(filepath.Join(dir, "backup_info.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// backupDirName is the sqlite_backup_YYYYMMDD_HHMMSS directory name spec
// §6 specifies, for a given moment.
func backupDirName(t time.Time) string {
	return "sqlite_backup_" + t.Format("20060102_150405")
}
