package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMetadataJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"input_name": "input",
		"output_name": "output",
		"input_shape": [1, 222, 222, 3],
		"output_shape": [1, 3],
		"classes": ["garbage", "pothole", "streetlight"],
		"image_size": 222
	}`), 0o644))

	md, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "input", md.InputName)
	assert.Equal(t, []int64{1, 222, 222, 3}, md.InputShape)
	assert.Equal(t, []int64{1, 3}, md.OutputShape)
	assert.Equal(t, []string{"garbage", "pothole", "streetlight"}, md.Classes)
	assert.Equal(t, 222, md.ImageSize)
}

func TestReadMetadataYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_metadata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input_name: serving_default_input
output_name: StatefulPartitionedCall
input_shape: [1, 222, 222, 3]
output_shape: [1, 5]
`), 0o644))

	md, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "serving_default_input", md.InputName)
	assert.Equal(t, []int64{1, 5}, md.OutputShape)
}

func TestReadMetadataRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed", content: `{"input_name":`},
		{name: "missing names", content: `{"input_shape":[1,2],"output_shape":[1,3]}`},
		{name: "dynamic dims", content: `{"input_name":"i","output_name":"o","input_shape":[-1,222,222,3],"output_shape":[1,3]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := ReadMetadata(path)
			assert.Error(t, err)
		})
	}

	_, err := ReadMetadata(filepath.Join(dir, "absent.json"))
	assert.Error(t, err)
}

func TestDefaultMetadataPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("models", "model_metadata.json"),
		DefaultMetadataPath(filepath.Join("models", "garbage_pothole_streetlight.onnx")))
}
