package model

// Metadata describes the tensors the exported model expects. It is read from
// the sidecar file written next to the model at export time.
type Metadata struct {
	InputName   string   `json:"input_name" yaml:"input_name"`
	OutputName  string   `json:"output_name" yaml:"output_name"`
	InputShape  []int64  `json:"input_shape" yaml:"input_shape"`
	OutputShape []int64  `json:"output_shape" yaml:"output_shape"`
	Classes     []string `json:"classes,omitempty" yaml:"classes,omitempty"`
	ImageSize   int      `json:"image_size,omitempty" yaml:"image_size,omitempty"`
}

// Tensor is a dense, row-major float32 tensor.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Row returns row i of a [N, K] tensor, or nil when the tensor is not
// two-dimensional or i is out of range.
func (t Tensor) Row(i int) []float32 {
	if len(t.Shape) != 2 || i < 0 || int64(i) >= t.Shape[0] {
		return nil
	}
	k := int(t.Shape[1])
	start, end := i*k, (i+1)*k
	if k < 0 || end > len(t.Data) {
		return nil
	}
	return t.Data[start:end]
}

// Model is a loaded, read-only inference handle.
type Model interface {
	Predict(input Tensor) (Tensor, error)
	Close() error
}
