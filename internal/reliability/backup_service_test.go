package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskwatch/internal/database"
	"github.com/aristath/riskwatch/internal/events"
)

// fakeObjectStore records uploads and serves a canned object listing
type fakeObjectStore struct {
	uploads map[string][]byte
	objects []StoredObject
	listErr error
	deleted []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeObjectStore) List(_ context.Context, _ string) ([]StoredObject, error) {
	return f.objects, f.listErr
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeObjectStore) Bucket() string { return "test-bucket" }

type fakeReplica struct {
	payload []byte
	err     error
}

func (f *fakeReplica) BackupTo(_ context.Context, destPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destPath, f.payload, 0o644)
}

func openBackupDB(t *testing.T, dir, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Name:    name,
		Profile: database.ProfileStandard,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO notes (body) VALUES ('hello')")
	require.NoError(t, err)

	return db
}

func extractArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[header.Name] = content
	}

	return files
}

func singleUpload(t *testing.T, store *fakeObjectStore) (string, []byte) {
	t.Helper()
	require.Len(t, store.uploads, 1)
	for key, data := range store.uploads {
		return key, data
	}
	return "", nil
}

func backupKey(age time.Duration) string {
	return backupPrefix + time.Now().UTC().Add(-age).Format(backupTimeFormat) + ".tar.gz"
}

func TestCreateAndUploadBackupArchivesDatabases(t *testing.T) {
	dir := t.TempDir()
	core := openBackupDB(t, dir, "core")
	cache := openBackupDB(t, dir, "cache")
	store := newFakeObjectStore()
	replica := &fakeReplica{payload: []byte("columnar bytes")}

	svc := NewBackupService(store, map[string]*database.DB{"core": core, "cache": cache}, replica, dir, nil, zerolog.Nop())
	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	key, data := singleUpload(t, store)
	assert.True(t, strings.HasPrefix(key, backupPrefix), key)
	assert.True(t, strings.HasSuffix(key, ".tar.gz"), key)

	files := extractArchive(t, data)
	assert.Contains(t, files, "core.db")
	assert.Contains(t, files, "cache.db")
	assert.Equal(t, []byte("columnar bytes"), files[replicaFilename])
	require.Contains(t, files, manifestName)

	var manifest BackupMetadata
	require.NoError(t, json.Unmarshal(files[manifestName], &manifest))
	assert.Equal(t, manifestVersion, manifest.Version)
	require.Len(t, manifest.Databases, 3)

	// Every manifest entry must match the archived bytes it describes.
	for _, meta := range manifest.Databases {
		content, ok := files[meta.Filename]
		require.True(t, ok, meta.Filename)
		assert.Equal(t, int64(len(content)), meta.SizeBytes, meta.Filename)

		sum := sha256.Sum256(content)
		assert.Equal(t, fmt.Sprintf("sha256:%x", sum), meta.Checksum, meta.Filename)
	}
}

func TestCreateAndUploadBackupCleansStagingDir(t *testing.T) {
	dir := t.TempDir()
	core := openBackupDB(t, dir, "core")
	store := newFakeObjectStore()

	svc := NewBackupService(store, map[string]*database.DB{"core": core}, nil, dir, nil, zerolog.Nop())
	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), "backup-staging-"), entry.Name())
	}
}

func TestCreateAndUploadBackupContinuesWithoutReplica(t *testing.T) {
	dir := t.TempDir()
	core := openBackupDB(t, dir, "core")
	store := newFakeObjectStore()
	replica := &fakeReplica{err: errors.New("replica offline")}

	svc := NewBackupService(store, map[string]*database.DB{"core": core}, replica, dir, nil, zerolog.Nop())
	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	_, data := singleUpload(t, store)
	files := extractArchive(t, data)
	assert.Contains(t, files, "core.db")
	assert.NotContains(t, files, replicaFilename)

	var manifest BackupMetadata
	require.NoError(t, json.Unmarshal(files[manifestName], &manifest))
	require.Len(t, manifest.Databases, 1)
	assert.Equal(t, "core", manifest.Databases[0].Name)
}

func TestCreateAndUploadBackupEmitsCompletedEvent(t *testing.T) {
	dir := t.TempDir()
	core := openBackupDB(t, dir, "core")
	store := newFakeObjectStore()

	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())
	var captured []*events.Event
	_ = bus.Subscribe(events.BackupCompleted, func(e *events.Event) { captured = append(captured, e) })

	svc := NewBackupService(store, map[string]*database.DB{"core": core}, nil, dir, manager, zerolog.Nop())
	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	require.Len(t, captured, 1)
	assert.Equal(t, "reliability", captured[0].Module)
	assert.Equal(t, "test-bucket", captured[0].Data["bucket"])
	key, _ := singleUpload(t, store)
	assert.Equal(t, key, captured[0].Data["key"])
	assert.Greater(t, captured[0].Data["size_bytes"].(float64), 0.0)
}

func TestListBackupsSortsNewestFirstAndSkipsForeignKeys(t *testing.T) {
	store := newFakeObjectStore()
	older := backupKey(48 * time.Hour)
	newer := backupKey(2 * time.Hour)
	store.objects = []StoredObject{
		{Key: older, Size: 2048},
		{Key: newer, Size: 4096},
		{Key: backupPrefix + "garbage.tar.gz", Size: 1},
		{Key: "unrelated.txt", Size: 1},
	}

	svc := NewBackupService(store, nil, nil, t.TempDir(), nil, zerolog.Nop())
	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)

	require.Len(t, backups, 2)
	assert.Equal(t, newer, backups[0].Filename)
	assert.Equal(t, int64(4096), backups[0].SizeBytes)
	assert.Equal(t, older, backups[1].Filename)
	assert.GreaterOrEqual(t, backups[1].AgeHours, int64(47))
}

func TestRotateKeepsNewestThreeRegardlessOfAge(t *testing.T) {
	store := newFakeObjectStore()
	store.objects = []StoredObject{
		{Key: backupKey(100 * 24 * time.Hour)},
		{Key: backupKey(200 * 24 * time.Hour)},
		{Key: backupKey(300 * 24 * time.Hour)},
	}

	svc := NewBackupService(store, nil, nil, t.TempDir(), nil, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background(), 7))
	assert.Empty(t, store.deleted)
}

func TestRotateDeletesOldBackupsBeyondMinimum(t *testing.T) {
	store := newFakeObjectStore()
	expired1 := backupKey(10 * 24 * time.Hour)
	expired2 := backupKey(20 * 24 * time.Hour)
	store.objects = []StoredObject{
		{Key: backupKey(24 * time.Hour)},
		{Key: backupKey(2 * 24 * time.Hour)},
		{Key: backupKey(3 * 24 * time.Hour)},
		{Key: expired1},
		{Key: expired2},
	}

	svc := NewBackupService(store, nil, nil, t.TempDir(), nil, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background(), 7))
	assert.ElementsMatch(t, []string{expired1, expired2}, store.deleted)
}

func TestRotateRetentionZeroKeepsEverything(t *testing.T) {
	store := newFakeObjectStore()
	store.objects = []StoredObject{
		{Key: backupKey(10 * 24 * time.Hour)},
		{Key: backupKey(20 * 24 * time.Hour)},
		{Key: backupKey(30 * 24 * time.Hour)},
		{Key: backupKey(40 * 24 * time.Hour)},
	}

	svc := NewBackupService(store, nil, nil, t.TempDir(), nil, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background(), 0))
	assert.Empty(t, store.deleted)
}

func TestBackupJobUploadsAndSurvivesRotationFailure(t *testing.T) {
	dir := t.TempDir()
	core := openBackupDB(t, dir, "core")
	store := newFakeObjectStore()
	store.listErr = errors.New("list unavailable")

	svc := NewBackupService(store, map[string]*database.DB{"core": core}, nil, dir, nil, zerolog.Nop())
	job := NewBackupJob(svc, 7, zerolog.Nop())

	assert.Equal(t, "db_backup", job.Name())
	require.NoError(t, job.Run())
	assert.Len(t, store.uploads, 1)
}
