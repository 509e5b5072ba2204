// Package dataset reads benchmark vector files into records the runner can
// load and query. JSON (array or newline-delimited) and CSV layouts are
// supported.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	vdbbench "github.com/Uyyuu/VectorDBBench"
)

// LoadFile dispatches on the file extension (.json, .ndjson, .csv).
func LoadFile(path string, logger *zap.Logger) ([]vdbbench.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".ndjson":
		return LoadJSONFile(path, logger)
	case ".csv":
		return LoadCSVFile(path, logger)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

// LoadJSONFile reads the entire file and attempts to decode it as either a
// JSON array of records or as newline-delimited JSON objects.
func LoadJSONFile(path string, logger *zap.Logger) ([]vdbbench.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file %s: %w", path, err)
	}

	var records []vdbbench.Record
	if err := sonic.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	// Fallback to newline-delimited JSON
	var recs []vdbbench.Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var r vdbbench.Record
		if err := sonic.Unmarshal(line, &r); err != nil {
			logger.Warn("failed to parse JSON line", zap.String("line", scanner.Text()), zap.Error(err))
			continue
		}
		recs = append(recs, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed scanning JSON file %s: %w", path, err)
	}
	return recs, nil
}

// LoadCSVFile reads a CSV file where the first column is the record id and
// the second column contains a JSON-encoded vector. A header row of
// "id,vector" is required.
func LoadCSVFile(path string, logger *zap.Logger) ([]vdbbench.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header from %s: %w", path, err)
	}
	if len(header) != 2 || header[0] != "id" || header[1] != "vector" {
		return nil, fmt.Errorf("CSV file %s must have exactly two columns: id, vector", path)
	}

	var records []vdbbench.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV file %s: %w", path, err)
		}

		id, err := strconv.ParseInt(row[0], 10, 32)
		if err != nil {
			logger.Warn("failed to parse CSV id", zap.String("value", row[0]), zap.Error(err))
			continue
		}

		var vector []float32
		if err := sonic.UnmarshalString(row[1], &vector); err != nil {
			logger.Warn("failed to parse vector JSON", zap.String("value", row[1]), zap.Error(err))
			continue
		}

		records = append(records, vdbbench.Record{ID: int32(id), Vector: vector})
	}

	return records, nil
}

// Queries extracts just the vectors from records, for use as search queries.
func Queries(records []vdbbench.Record) [][]float32 {
	out := make([][]float32, len(records))
	for i, r := range records {
		out[i] = r.Vector
	}
	return out
}

// ValidateDimension checks that every record's vector has exactly dim
// elements before anything is sent to the database.
func ValidateDimension(records []vdbbench.Record, dim int) error {
	for _, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("record %d has dimension %d, want %d", r.ID, len(r.Vector), dim)
		}
	}
	return nil
}
