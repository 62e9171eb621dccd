// Package reliability handles database backups to S3-compatible storage.
//
// Backups are staged locally with VACUUM INTO (the staged copy is
// integrity-checked before it is trusted), bundled into a tar.gz archive
// together with a checksum manifest, uploaded, and rotated by age.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/database"
	"github.com/aristath/riskwatch/internal/events"
)

const (
	backupPrefix     = "riskwatch-backup-"
	backupTimeFormat = "2006-01-02-150405"
	manifestName     = "backup-metadata.json"
	manifestVersion  = "1.0.0"
	replicaFilename  = "analytics.duckdb"

	// Newest backups are never rotated away, whatever their age.
	minBackupsToKeep = 3
)

// ObjectStore is the remote side of the backup pipeline
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
	List(ctx context.Context, prefix string) ([]StoredObject, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// ReplicaBackupper stages a copy of the analytical replica
type ReplicaBackupper interface {
	BackupTo(ctx context.Context, destPath string) error
}

// BackupMetadata describes the contents of a backup archive
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single staged database inside the archive
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo represents a backup stored remotely
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService creates compressed database backups and ships them to
// S3-compatible storage
type BackupService struct {
	store     ObjectStore
	databases map[string]*database.DB
	replica   ReplicaBackupper
	dataDir   string
	events    *events.Manager
	log       zerolog.Logger
}

// NewBackupService creates a backup service. The replica and event manager
// may be nil; the archive then only carries the relational databases.
func NewBackupService(
	store ObjectStore,
	databases map[string]*database.DB,
	replica ReplicaBackupper,
	dataDir string,
	eventManager *events.Manager,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		store:     store,
		databases: databases,
		replica:   replica,
		dataDir:   dataDir,
		events:    eventManager,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup stages every database, archives the staged copies
// with a checksum manifest, and uploads the archive
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) error {
	s.log.Info().Msg("Starting database backup")
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Version:   manifestVersion,
	}

	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	archiveMembers := make([]string, 0, len(names)+2)
	for _, name := range names {
		filename := name + ".db"
		stagedPath := filepath.Join(stagingDir, filename)

		if err := s.stageDatabase(name, stagedPath); err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}

		meta, err := describeStagedFile(name, filename, stagedPath)
		if err != nil {
			return err
		}

		metadata.Databases = append(metadata.Databases, meta)
		archiveMembers = append(archiveMembers, filename)
	}

	// The replica is rebuilt from the relational core on every sync, so
	// losing it from one archive is tolerable.
	if s.replica != nil {
		stagedPath := filepath.Join(stagingDir, replicaFilename)
		if err := s.replica.BackupTo(ctx, stagedPath); err != nil {
			s.log.Warn().Err(err).Msg("Replica backup failed, archiving without it")
		} else {
			meta, err := describeStagedFile("analytics", replicaFilename, stagedPath)
			if err != nil {
				return err
			}
			metadata.Databases = append(metadata.Databases, meta)
			archiveMembers = append(archiveMembers, replicaFilename)
		}
	}

	manifestPath := filepath.Join(stagingDir, manifestName)
	if err := writeManifest(manifestPath, metadata); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	archiveMembers = append(archiveMembers, manifestName)

	archiveName := backupPrefix + time.Now().UTC().Format(backupTimeFormat) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, archiveMembers); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.store.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	duration := time.Since(startTime)
	s.log.Info().
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Int("databases", len(metadata.Databases)).
		Dur("duration_ms", duration).
		Msg("Backup uploaded")

	if s.events != nil {
		s.events.EmitTyped(events.BackupCompleted, "reliability", &events.BackupCompletedData{
			Bucket:    s.store.Bucket(),
			Key:       archiveName,
			SizeBytes: archiveInfo.Size(),
			Duration:  duration.Seconds(),
		})
	}

	return nil
}

// ListBackups lists backups stored remotely, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, backupPrefix) || !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, backupPrefix), ".tar.gz")
		timestamp, err := time.Parse(backupTimeFormat, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Skipping backup with unparseable timestamp")
			continue
		}

		backups = append(backups, BackupInfo{
			Filename:  obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes remote backups older than the retention period.
// The newest minBackupsToKeep survive regardless of age, and a retention of
// zero keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	if len(backups) <= minBackupsToKeep {
		s.log.Debug().Int("count", len(backups)).Msg("Too few backups to rotate")
		return nil
	}

	if retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0

	for i, backup := range backups {
		if i < minBackupsToKeep {
			continue
		}
		if !backup.Timestamp.Before(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
			continue
		}

		s.log.Info().
			Str("filename", backup.Filename).
			Time("timestamp", backup.Timestamp).
			Msg("Deleted old backup")
		deleted++
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Backup rotation completed")
	}

	return nil
}

// stageDatabase copies one relational database into the staging directory
// using VACUUM INTO and verifies the copy before it is archived
func (s *BackupService) stageDatabase(name, destPath string) error {
	db, ok := s.databases[name]
	if !ok {
		return fmt.Errorf("database %s not registered", name)
	}

	s.log.Debug().Str("database", name).Msg("Staging database")

	// VACUUM INTO writes a compacted copy without WAL side files.
	if _, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}

	if err := verifyStagedCopy(destPath); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("staged copy failed verification: %w", err)
	}

	return nil
}

// verifyStagedCopy opens a staged SQLite copy and runs an integrity check
func verifyStagedCopy(path string) error {
	copyDB, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open staged copy: %w", err)
	}
	defer copyDB.Close()

	var result string
	if err := copyDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

func describeStagedFile(name, filename, path string) (DatabaseMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return DatabaseMetadata{}, fmt.Errorf("failed to stat %s: %w", filename, err)
	}

	checksum, err := fileChecksum(path)
	if err != nil {
		return DatabaseMetadata{}, fmt.Errorf("failed to checksum %s: %w", filename, err)
	}

	return DatabaseMetadata{
		Name:      name,
		Filename:  filename,
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}, nil
}

// fileChecksum returns the sha256 digest of a file
func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// writeManifest writes backup metadata to a JSON file
func writeManifest(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive bundles the named staging files into a tar.gz archive
func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}

	return nil
}

// addFileToArchive adds a single file to a tar archive
func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}

	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	if _, err := io.Copy(tarWriter, file); err != nil {
		return err
	}

	return nil
}
