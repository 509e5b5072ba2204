package dataset

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	vdbbench "github.com/Uyyuu/VectorDBBench"
)

// Helper function to create temporary test files
func createTempFile(t *testing.T, content string, ext string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "testfile-*"+ext)
	require.NoError(t, err)

	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	tmpFile.Close()

	t.Cleanup(func() { os.Remove(tmpFile.Name()) })
	return tmpFile.Name()
}

func TestLoadJSONFile(t *testing.T) {
	logger := zap.NewNop()

	jsonData := `[{"id":1,"vector":[0.1,0.2,0.3]},{"id":2,"vector":[0.4,0.5,0.6]}]`
	jsonFile := createTempFile(t, jsonData, ".json")

	records, err := LoadJSONFile(jsonFile, logger)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int32(1), records[0].ID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, records[0].Vector)
}

func TestLoadJSONFileNewlineDelimited(t *testing.T) {
	logger := zap.NewNop()

	ndjson := "{\"id\":1,\"vector\":[0.1,0.2]}\n{\"id\":2,\"vector\":[0.3,0.4]}\n"
	file := createTempFile(t, ndjson, ".ndjson")

	records, err := LoadJSONFile(file, logger)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int32(2), records[1].ID)
}

func TestLoadCSVFile(t *testing.T) {
	logger := zap.NewNop()

	csvData := "id,vector\n1,\"[0.1,0.2,0.3]\"\n2,\"[0.4,0.5,0.6]\"\n"
	csvFile := createTempFile(t, csvData, ".csv")

	records, err := LoadCSVFile(csvFile, logger)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int32(1), records[0].ID)
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, records[1].Vector)
}

func TestLoadCSVFileRejectsBadHeader(t *testing.T) {
	logger := zap.NewNop()

	csvFile := createTempFile(t, "key,embedding\n1,\"[0.1]\"\n", ".csv")
	_, err := LoadCSVFile(csvFile, logger)
	require.Error(t, err)
}

func TestLoadFileDispatchesOnExtension(t *testing.T) {
	logger := zap.NewNop()

	jsonFile := createTempFile(t, `[{"id":1,"vector":[1]}]`, ".json")
	records, err := LoadFile(jsonFile, logger)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = LoadFile("vectors.parquet", logger)
	require.Error(t, err)
}

func TestQueries(t *testing.T) {
	records := []vdbbench.Record{
		{ID: 1, Vector: []float32{1, 2}},
		{ID: 2, Vector: []float32{3, 4}},
	}
	queries := Queries(records)
	require.Len(t, queries, 2)
	assert.Equal(t, []float32{3, 4}, queries[1])
}

func TestValidateDimension(t *testing.T) {
	records := []vdbbench.Record{
		{ID: 1, Vector: []float32{1, 2}},
		{ID: 2, Vector: []float32{3}},
	}
	require.NoError(t, ValidateDimension(records[:1], 2))
	err := ValidateDimension(records, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")
}
