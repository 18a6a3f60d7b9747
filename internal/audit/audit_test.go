package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

func sampleRecords() []Record {
	return []Record{
		NewRecord(t0, OpSearch, "default", "from:news@example.com").WithCount(3).Success(),
		NewRecord(t0.Add(time.Second), OpDelete, "default", "older_than:1y").WithDryRun(true).WithCount(10).Success(),
		NewRecord(t0.Add(2*time.Second), OpDelete, "work", "older_than:1y").WithCount(0).Failure("limit_exceeded"),
		NewRecord(t0.Add(3*time.Second), OpCount, "work", "").Outcome(nil),
	}
}

func appendAll(t *testing.T, s Store, records []Record) []Record {
	t.Helper()
	var out []Record
	for _, r := range records {
		sealed, err := s.Append(context.Background(), r)
		require.NoError(t, err)
		out = append(out, sealed)
	}
	return out
}

func TestNewRecord(t *testing.T) {
	r := NewRecord(t0.In(time.FixedZone("CET", 3600)), OpSearch, "default", "")
	assert.Equal(t, time.UTC, r.Timestamp.Location())
	assert.Equal(t, 123456000, r.Timestamp.Nanosecond())
	assert.Nil(t, r.Filter)
	assert.Nil(t, r.ItemCount)

	failed := r.Outcome(errors.New("boom"))
	assert.False(t, failed.Succeeded)
	require.NotNil(t, failed.ErrorDetail)
	assert.Equal(t, "boom", *failed.ErrorDetail)

	ok := failed.Success()
	assert.True(t, ok.Succeeded)
	assert.Nil(t, ok.ErrorDetail)
}

func TestDigestIgnoresDigestField(t *testing.T) {
	r := sampleRecords()[0]
	d1, err := Digest(r)
	require.NoError(t, err)
	r.Digest = "anything"
	d2, err := Digest(r)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}

func TestMemoryStoreChain(t *testing.T) {
	s := NewMemoryStore()
	sealed := appendAll(t, s, sampleRecords())

	for i, r := range sealed {
		assert.Equal(t, int64(i+1), r.Sequence)
		if i > 0 {
			assert.Equal(t, sealed[i-1].Digest, r.PrevDigest)
		}
	}
	assert.Empty(t, sealed[0].PrevDigest)

	got, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sealed, got)
	require.NoError(t, Verify(got))
}

func TestVerifyDetectsTampering(t *testing.T) {
	s := NewMemoryStore()
	sealed := appendAll(t, s, sampleRecords())

	tests := []struct {
		name   string
		mutate func([]Record) []Record
		want   string
	}{
		{
			name: "edited field",
			mutate: func(rs []Record) []Record {
				rs[1].DryRun = false
				return rs
			},
			want: "digest mismatch",
		},
		{
			name: "dropped record",
			mutate: func(rs []Record) []Record {
				return append(rs[:1], rs[2:]...)
			},
			want: "sequence",
		},
		{
			name: "truncated head",
			mutate: func(rs []Record) []Record {
				return rs[1:]
			},
			want: "sequence",
		},
		{
			name: "relinked record",
			mutate: func(rs []Record) []Record {
				rs[2].PrevDigest = rs[0].Digest
				return rs
			},
			want: "previous digest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := tt.mutate(append([]Record(nil), sealed...))
			err := Verify(rs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestVerifyEmpty(t *testing.T) {
	assert.NoError(t, Verify(nil))
}

func TestMemoryStoreConcurrentAppend(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(context.Background(), NewRecord(t0, OpCount, "default", "x").Success())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 50)
	assert.NoError(t, Verify(got))
}

func TestFileStoreRoundTripAndResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	first := appendAll(t, s, sampleRecords()[:2])

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	second := appendAll(t, reopened, sampleRecords()[2:])
	assert.Equal(t, int64(3), second[0].Sequence)
	assert.Equal(t, first[1].Digest, second[0].PrevDigest)

	got, err := reopened.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, append(first, second...), got)

	n, err := VerifyFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreMissingFileReadsEmpty(t *testing.T) {
	s, err := OpenFileStore(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	got, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStoreAppendFailureKeepsChain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	appendAll(t, s, sampleRecords()[:1])

	// A directory in place of the file makes the next open fail.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o700))
	_, err = s.Append(context.Background(), sampleRecords()[1])
	require.Error(t, err)

	require.NoError(t, os.Remove(path))
	r, err := s.Append(context.Background(), sampleRecords()[1])
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Sequence, "failed append does not consume a sequence")
}

// shortWriter writes half of the first line it sees, then fails.
type shortWriter struct {
	*os.File
	failed bool
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if w.failed {
		return w.File.Write(p)
	}
	w.failed = true
	n, _ := w.File.Write(p[:len(p)/2])
	return n, errors.New("disk full")
}

func TestFileStorePartialWriteIsRolledBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	appendAll(t, s, sampleRecords()[:1])
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s.open = func(path string) (appendFile, error) {
		f, err := openAppend(path)
		if err != nil {
			return nil, err
		}
		return &shortWriter{File: f.(*os.File)}, nil
	}
	_, err = s.Append(context.Background(), sampleRecords()[1])
	require.ErrorContains(t, err, "disk full")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	s.open = openAppend
	appendAll(t, s, sampleRecords()[1:])

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 4)
	n, err := VerifyFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestVerifyFileDetectsEditedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	appendAll(t, s, sampleRecords())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := strings.Replace(string(data), `"itemCount":10`, `"itemCount":1`, 1)
	require.NotEqual(t, string(data), edited)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o600))

	_, err = VerifyFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestValidateJSONL(t *testing.T) {
	digest := strings.Repeat("a", 64)
	tests := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{
			name: "valid",
			line: `{"timestamp":"2026-03-01T12:00:00Z","operationKind":"delete","dryRun":true,"succeeded":true,"sequence":1,"digest":"` + digest + `"}`,
		},
		{
			name:    "unknown operation",
			line:    `{"timestamp":"2026-03-01T12:00:00Z","operationKind":"purge","dryRun":true,"succeeded":true,"sequence":1,"digest":"` + digest + `"}`,
			wantErr: true,
		},
		{
			name:    "missing digest",
			line:    `{"timestamp":"2026-03-01T12:00:00Z","operationKind":"count","dryRun":false,"succeeded":true,"sequence":1}`,
			wantErr: true,
		},
		{
			name:    "negative count",
			line:    `{"timestamp":"2026-03-01T12:00:00Z","operationKind":"count","itemCount":-1,"dryRun":false,"succeeded":true,"sequence":1,"digest":"` + digest + `"}`,
			wantErr: true,
		},
		{
			name:    "unexpected field",
			line:    `{"timestamp":"2026-03-01T12:00:00Z","operationKind":"count","dryRun":false,"succeeded":true,"sequence":1,"digest":"` + digest + `","ids":["m1"]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSONL([]byte(tt.line + "\n\n"))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("INBOXPRUNE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INBOXPRUNE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS audit_records`)
	require.NoError(t, err)

	s, err := NewPostgresStore(ctx, pool)
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))
	sealed := appendAll(t, s, sampleRecords()[:2])

	resumed, err := NewPostgresStore(ctx, pool)
	require.NoError(t, err)
	sealed = append(sealed, appendAll(t, resumed, sampleRecords()[2:])...)

	got, err := resumed.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, sealed, got)
	assert.NoError(t, Verify(got))
}
