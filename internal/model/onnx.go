package model

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXOptions configures the ONNX Runtime load strategies.
type ONNXOptions struct {
	MetadataPath      string
	SharedLibraryPath string
	IntraOpThreads    int
	// ImageSize, when set, is the side S the input must declare.
	ImageSize         int
}

// ONNXStrategies returns the load strategies for an ONNX artifact, from the
// strictest to the most permissive:
//
//   - default: session shaped by the metadata sidecar
//   - introspect: session shaped by the graph's own input/output info
//   - permissive: dynamic session, no pinned shapes, arena and memory
//     pattern disabled
//
// The first two only accept an NHWC [1, S, S, 3] input.
func ONNXStrategies(opts ONNXOptions) []Strategy {
	return []Strategy{
		{Name: "default", Load: func(path string) (Model, error) {
			md, err := ReadMetadata(opts.MetadataPath)
			if err != nil {
				return nil, err
			}
			if err := checkImageInput(md.InputShape, opts.ImageSize); err != nil {
				return nil, err
			}
			return newBoundSession(path, md, opts)
		}},
		{Name: "introspect", Load: func(path string) (Model, error) {
			md, err := introspect(path, opts)
			if err != nil {
				return nil, err
			}
			if err := checkImageInput(md.InputShape, opts.ImageSize); err != nil {
				return nil, err
			}
			return newBoundSession(path, md, opts)
		}},
		{Name: "permissive", Load: func(path string) (Model, error) {
			return newDynamicSession(path, opts)
		}},
	}
}

var envMu sync.Mutex

func ensureEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// Shutdown releases the ONNX Runtime environment. Call it after every model
// has been closed.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

func sessionOptions(opts ONNXOptions, permissive bool) (*ort.SessionOptions, error) {
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if opts.IntraOpThreads > 0 {
		if err := so.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}
	if permissive {
		if err := so.SetCpuMemArena(false); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("failed to disable cpu arena: %w", err)
		}
		if err := so.SetMemPattern(false); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("failed to disable memory pattern: %w", err)
		}
	}
	return so, nil
}

func introspect(path string, opts ONNXOptions) (Metadata, error) {
	if err := ensureEnvironment(opts.SharedLibraryPath); err != nil {
		return Metadata{}, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read model graph info: %w", err)
	}
	if len(inputs) != 1 {
		return Metadata{}, fmt.Errorf("expected exactly one model input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return Metadata{}, errors.New("model declares no outputs")
	}

	md := Metadata{
		InputName:   inputs[0].Name,
		OutputName:  outputs[0].Name,
		InputShape:  pinBatch(inputs[0].Dimensions),
		OutputShape: pinBatch(outputs[0].Dimensions),
	}
	if err := md.validate(); err != nil {
		return Metadata{}, fmt.Errorf("graph shapes are not static: %w", err)
	}
	return md, nil
}

// checkImageInput rejects any input layout other than [1, S, S, 3].
func checkImageInput(shape []int64, size int) error {
	if len(shape) != 4 || shape[0] != 1 || shape[3] != 3 || shape[1] != shape[2] {
		return fmt.Errorf("model input %v is not NHWC [1, S, S, 3]", shape)
	}
	if size > 0 && shape[1] != int64(size) {
		return fmt.Errorf("model input %v does not match image size %d", shape, size)
	}
	return nil
}

// pinBatch copies dims and fixes a dynamic leading batch dimension to 1.
func pinBatch(dims []int64) []int64 {
	out := append([]int64(nil), dims...)
	if len(out) > 0 && out[0] <= 0 {
		out[0] = 1
	}
	return out
}

// boundSession runs an AdvancedSession over pre-allocated tensors. The
// tensors are shared between calls, so Predict is serialized.
type boundSession struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newBoundSession(path string, md Metadata, opts ONNXOptions) (*boundSession, error) {
	if err := ensureEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	so, err := sessionOptions(opts, false)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer so.Destroy()

	session, err := ort.NewAdvancedSession(path,
		[]string{md.InputName}, []string{md.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		so)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &boundSession{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

func (s *boundSession) Predict(in Tensor) (Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := []int64(s.input.GetShape())
	if !slices.Equal(in.Shape, want) {
		return Tensor{}, fmt.Errorf("input shape %v does not match model input %v", in.Shape, want)
	}
	dst := s.input.GetData()
	if len(in.Data) != len(dst) {
		return Tensor{}, fmt.Errorf("input has %d values, model expects %d", len(in.Data), len(dst))
	}
	copy(dst, in.Data)

	if err := s.session.Run(); err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}

	return Tensor{
		Shape: []int64(s.output.GetShape().Clone()),
		Data:  append([]float32(nil), s.output.GetData()...),
	}, nil
}

func (s *boundSession) Close() error {
	var errs []error
	if s.input != nil {
		errs = append(errs, s.input.Destroy())
	}
	if s.output != nil {
		errs = append(errs, s.output.Destroy())
	}
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
	}
	return errors.Join(errs...)
}

// dynamicSession lets the runtime allocate the output on every call, so it
// holds no per-call state and needs no lock.
type dynamicSession struct {
	session *ort.DynamicAdvancedSession
}

func newDynamicSession(path string, opts ONNXOptions) (*dynamicSession, error) {
	if err := ensureEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, err
	}

	inputName, outputName, err := ioNames(path, opts)
	if err != nil {
		return nil, err
	}

	so, err := sessionOptions(opts, true)
	if err != nil {
		return nil, err
	}
	defer so.Destroy()

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputName}, []string{outputName}, so)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic ONNX session: %w", err)
	}
	return &dynamicSession{session: session}, nil
}

// ioNames prefers the names declared in the graph and falls back to the
// metadata sidecar.
func ioNames(path string, opts ONNXOptions) (string, string, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err == nil && len(inputs) > 0 && len(outputs) > 0 {
		return inputs[0].Name, outputs[0].Name, nil
	}
	md, mdErr := ReadMetadata(opts.MetadataPath)
	if mdErr != nil {
		return "", "", fmt.Errorf("no tensor names available: graph: %v; metadata: %w", err, mdErr)
	}
	return md.InputName, md.OutputName, nil
}

func (s *dynamicSession) Predict(in Tensor) (Tensor, error) {
	input, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	return Tensor{
		Shape: []int64(out.GetShape().Clone()),
		Data:  append([]float32(nil), out.GetData()...),
	}, nil
}

func (s *dynamicSession) Close() error {
	return s.session.Destroy()
}
