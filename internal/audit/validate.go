package audit

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed record.schema.json
var recordSchema []byte

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		compiledSchema, compileErr = compiler.Compile(recordSchema)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile audit schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// ValidateLine checks one encoded record against the record schema.
func ValidateLine(line []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}
	result := s.ValidateJSON(line)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}

// ValidateJSONL checks every non-empty line of an audit log.
func ValidateJSONL(data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		if err := ValidateLine(b); err != nil {
			return fmt.Errorf("audit log line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	return nil
}

// VerifyFile validates every line of the log at path against the record
// schema and checks the digest chain. It returns the number of records.
func VerifyFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read audit log: %w", err)
	}
	if err := ValidateJSONL(data); err != nil {
		return 0, err
	}
	records, err := parseJSONL(data)
	if err != nil {
		return 0, err
	}
	if err := Verify(records); err != nil {
		return len(records), err
	}
	return len(records), nil
}
