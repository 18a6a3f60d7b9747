package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const maxLineSize = 1024 * 1024

// FileStore appends records to a JSON Lines file. The file is opened in
// append mode for every record and synced before Append returns; existing
// lines are never rewritten.
type FileStore struct {
	path string
	open func(path string) (appendFile, error)

	mu    sync.Mutex
	chain chain
}

// appendFile is the part of *os.File that Append uses.
type appendFile interface {
	io.Writer
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

func openAppend(path string) (appendFile, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

var _ Store = (*FileStore)(nil)

// OpenFileStore opens (or creates) the log at path and resumes its chain.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	s := &FileStore{path: path, open: openAppend}
	records, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if n := len(records); n > 0 {
		s.chain.advance(records[n-1])
	}
	return s, nil
}

// Path returns the log location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Append(_ context.Context, r Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := s.chain.seal(r)
	if err != nil {
		return Record{}, err
	}
	line, err := json.Marshal(sealed)
	if err != nil {
		return Record{}, fmt.Errorf("encode audit record: %w", err)
	}
	line = append(line, '\n')

	f, err := s.open(s.path)
	if err != nil {
		return Record{}, fmt.Errorf("open audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return Record{}, fmt.Errorf("stat audit log: %w", err)
	}
	// A failed write must not leave a partial line behind; the next open
	// would refuse to parse the log.
	size := info.Size()
	if _, err := f.Write(line); err != nil {
		return Record{}, rollback(f, size, fmt.Errorf("append audit record: %w", err))
	}
	if err := f.Sync(); err != nil {
		return Record{}, rollback(f, size, fmt.Errorf("sync audit log: %w", err))
	}
	if err := f.Close(); err != nil {
		return Record{}, fmt.Errorf("close audit log: %w", err)
	}

	s.chain.advance(sealed)
	return sealed, nil
}

func rollback(f appendFile, size int64, cause error) error {
	if err := f.Truncate(size); err != nil {
		cause = errors.Join(cause, fmt.Errorf("truncate audit log: %w", err))
	}
	_ = f.Close()
	return cause
}

func (s *FileStore) Read(context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readFile(s.path)
}

func readFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return parseJSONL(data)
}

func parseJSONL(data []byte) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("audit log line %d: %w", line, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return records, nil
}
