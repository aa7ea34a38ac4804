package evaluator

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const maxLineSize = 16 * 1024 * 1024

// ReadRequests decodes one EvaluationRequest per line. Blank lines are skipped.
func ReadRequests(r io.Reader) ([]EvaluationRequest, error) {
	return readLines[EvaluationRequest](r, "request")
}

// LoadRequests reads requests from a JSONL file.
func LoadRequests(path string) ([]EvaluationRequest, error) {
	return loadLines(path, ReadRequests)
}

// ReadResults decodes one EvaluationResult per line, as written by
// WriteResults. Blank lines are skipped.
func ReadResults(r io.Reader) ([]EvaluationResult, error) {
	return readLines[EvaluationResult](r, "result")
}

// LoadResults reads results from a JSONL file.
func LoadResults(path string) ([]EvaluationResult, error) {
	return loadLines(path, ReadResults)
}

func readLines[T any](r io.Reader, kind string) ([]T, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var records []T
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var record T
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("failed to decode %s on line %d: %w", kind, line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %ss: %w", kind, err)
	}

	return records, nil
}

func loadLines[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return read(f)
}

// WriteResults encodes one EvaluationResult per line. Unparsed tables are
// written as null.
func WriteResults(w io.Writer, results []EvaluationResult) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, result := range results {
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result %d (id %q): %w", i, result.ID, err)
		}
	}
	return nil
}

// SaveResults writes results to a JSONL file, replacing any existing file.
func SaveResults(path string, results []EvaluationResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	if err := WriteResults(w, results); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
