package backup

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sweatpact/sweatpact/internal/clock"
	"github.com/sweatpact/sweatpact/internal/database"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	putErr   error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
	}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	m.modified[*input.Key] = time.Now().UTC()
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3NotFound{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	delete(m.modified, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	truncated := false
	out := &s3.ListObjectsV2Output{IsTruncated: &truncated}
	for key := range m.objects {
		mod := m.modified[key]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			LastModified: &mod,
		})
	}
	return out, nil
}

type s3NotFound struct{}

func (e *s3NotFound) Error() string { return "NoSuchKey" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupManager(t *testing.T) (*Manager, *mockS3Client, *clock.Fixed) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clk := &clock.Fixed{T: time.Date(2025, 4, 10, 3, 0, 0, 0, time.UTC)}
	m := NewManager(Config{
		S3:            S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
		DBPath:        dbPath,
		Passphrase:    "snapshot-pass",
		Hour:          3,
		RetentionDays: 30,
	}, db, clk, testLogger())

	mock := newMockS3()
	m.client = mock
	return m, mock, clk
}

func TestManagerDisabledWithoutConfig(t *testing.T) {
	m := NewManager(Config{}, nil, &clock.Fixed{}, testLogger())
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}
	if m.Enabled() {
		t.Error("manager should be disabled without S3 config")
	}
	if _, err := m.RunNow(context.Background()); err == nil {
		t.Error("expected error from RunNow when disabled")
	}
}

func TestManagerDisabledWithoutPassphrase(t *testing.T) {
	m := NewManager(Config{
		S3: S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
	}, nil, &clock.Fixed{}, testLogger())
	if m.Enabled() {
		t.Error("manager should be disabled without a passphrase")
	}
}

func TestRunNowUploadsEncryptedSnapshot(t *testing.T) {
	m, mock, _ := setupManager(t)

	key, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run now: %v", err)
	}

	mock.mu.Lock()
	sealed, ok := mock.objects[key]
	mock.mu.Unlock()
	if !ok {
		t.Fatalf("object %q not uploaded", key)
	}

	// The uploaded bytes must decrypt back to a SQLite file.
	plaintext, err := Decrypt(sealed, "snapshot-pass")
	if err != nil {
		t.Fatalf("decrypt upload: %v", err)
	}
	if !bytes.HasPrefix(plaintext, []byte("SQLite format 3")) {
		t.Error("decrypted snapshot is not a SQLite database")
	}

	st := m.Status()
	if st.State != StateIdle {
		t.Errorf("state = %q, want %q", st.State, StateIdle)
	}
	if st.LastKey != key {
		t.Errorf("last key = %q, want %q", st.LastKey, key)
	}
	if st.LastSnapshot == nil {
		t.Error("last snapshot time not set")
	}
}

func TestCheckScheduleRunsOncePerDay(t *testing.T) {
	m, mock, clk := setupManager(t)

	m.checkSchedule(context.Background())
	m.checkSchedule(context.Background())
	mock.mu.Lock()
	count := len(mock.objects)
	mock.mu.Unlock()
	if count != 1 {
		t.Fatalf("snapshots after same-day checks = %d, want 1", count)
	}

	// Wrong hour: nothing happens.
	clk.Advance(22 * time.Hour)
	m.checkSchedule(context.Background())
	mock.mu.Lock()
	count = len(mock.objects)
	mock.mu.Unlock()
	if count != 1 {
		t.Fatalf("snapshots after off-hour check = %d, want 1", count)
	}

	// Next day at the scheduled hour: a second snapshot.
	clk.Advance(2 * time.Hour)
	m.checkSchedule(context.Background())
	mock.mu.Lock()
	count = len(mock.objects)
	mock.mu.Unlock()
	if count != 2 {
		t.Fatalf("snapshots after next-day check = %d, want 2", count)
	}
}

func TestPruneDeletesExpiredSnapshots(t *testing.T) {
	m, mock, clk := setupManager(t)

	old := clk.Now().AddDate(0, 0, -45)
	fresh := clk.Now().AddDate(0, 0, -5)
	mock.objects["snapshots/old.db.enc"] = []byte("x")
	mock.modified["snapshots/old.db.enc"] = old
	mock.objects["snapshots/fresh.db.enc"] = []byte("x")
	mock.modified["snapshots/fresh.db.enc"] = fresh

	if err := m.prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	mock.mu.Lock()
	defer mock.mu.Unlock()
	if _, ok := mock.objects["snapshots/old.db.enc"]; ok {
		t.Error("expired snapshot not deleted")
	}
	if _, ok := mock.objects["snapshots/fresh.db.enc"]; !ok {
		t.Error("fresh snapshot should be kept")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m, _, _ := setupManager(t)

	key, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	if err := m.Restore(context.Background(), key); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestRestoreUnknownKey(t *testing.T) {
	m, _, _ := setupManager(t)
	if err := m.Restore(context.Background(), "snapshots/missing.db.enc"); err == nil {
		t.Error("expected error for missing snapshot")
	}
}
