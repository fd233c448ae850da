package analyzer

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/errors"
	"github.com/babelia-vision/babelia-go/internal/logging"
	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"
)

// ImageEmbedder turns an image into an embedding vector in the same space as
// the vocabulary's text embeddings.
type ImageEmbedder interface {
	EmbedImage(img image.Image) ([]float32, error)
	Dim() int
	Close()
}

// TFLiteEmbedder runs a TensorFlow Lite image encoder.
type TFLiteEmbedder struct {
	interpreter *tflite.Interpreter
	model       *tflite.Model
	settings    *conf.AnalyzerSettings
	logger      *slog.Logger
	inputWidth  int
	inputHeight int
	outputDim   int
	mu          sync.Mutex
}

// NewTFLiteEmbedder loads the image encoder model and allocates its tensors.
// A failure here is fatal to the caller; the agent refuses to start without
// a working encoder.
func NewTFLiteEmbedder(settings *conf.AnalyzerSettings) (*TFLiteEmbedder, error) {
	logger := logging.ForService("analyzer-embedder")
	if logger == nil {
		logger = slog.Default().With("service", "analyzer-embedder")
	}

	e := &TFLiteEmbedder{
		settings: settings,
		logger:   logger,
	}

	if err := e.initializeModel(); err != nil {
		return nil, errors.New(fmt.Errorf("failed to initialize image encoder: %w", err)).
			Component("analyzer").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.ModelPath).
			Build()
	}

	return e, nil
}

// initializeModel loads and initializes the image encoder model.
func (e *TFLiteEmbedder) initializeModel() error {
	start := time.Now()

	modelData, err := os.ReadFile(e.settings.ModelPath)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryModelLoad).
			Context("model_path", e.settings.ModelPath).
			Timing("model-load", time.Since(start)).
			Build()
	}

	e.model = tflite.NewModel(modelData)
	if e.model == nil {
		return errors.Newf("cannot load TensorFlow Lite model").
			Category(errors.CategoryModelInit).
			Context("model_size_mb", len(modelData)/1024/1024).
			Context("use_xnnpack", e.settings.UseXNNPACK).
			Build()
	}

	threads := e.determineThreadCount()

	options := tflite.NewInterpreterOptions()
	if e.settings.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))})
		if delegate == nil {
			e.logger.Warn("Failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, userData any) {
		slog.Error("TFLite error", "message", msg)
	}, nil)

	e.interpreter = tflite.NewInterpreter(e.model, options)
	if e.interpreter == nil {
		return fmt.Errorf("cannot create interpreter")
	}
	if status := e.interpreter.AllocateTensors(); status != tflite.OK {
		return fmt.Errorf("tensor allocation failed")
	}

	inputTensor := e.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return fmt.Errorf("cannot get input tensor")
	}
	// Input layout is NHWC: [1, height, width, 3]
	if inputTensor.NumDims() != 4 {
		return fmt.Errorf("unexpected input tensor rank %d", inputTensor.NumDims())
	}
	e.inputHeight = inputTensor.Dim(1)
	e.inputWidth = inputTensor.Dim(2)

	outputTensor := e.interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return fmt.Errorf("cannot get output tensor")
	}
	e.outputDim = outputTensor.Dim(outputTensor.NumDims() - 1)

	// The interpreter keeps its own copy of the model data
	runtime.GC()

	e.logger.Info("image encoder initialized",
		"model", e.settings.ModelPath,
		"input", fmt.Sprintf("%dx%d", e.inputWidth, e.inputHeight),
		"embedding_dim", e.outputDim,
		"threads", threads,
		"total_cpus", runtime.NumCPU())

	return nil
}

// determineThreadCount resolves the interpreter thread count from settings,
// defaulting to all CPUs.
func (e *TFLiteEmbedder) determineThreadCount() int {
	if e.settings.Threads > 0 && e.settings.Threads <= runtime.NumCPU() {
		return e.settings.Threads
	}
	return runtime.NumCPU()
}

// EmbedImage runs the encoder on an image and returns its embedding.
func (e *TFLiteEmbedder) EmbedImage(img image.Image) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inputTensor := e.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, errors.Newf("cannot get input tensor").
			Component("analyzer").
			Category(errors.CategoryAnalysis).
			Build()
	}

	sample := preprocess(img, e.inputWidth, e.inputHeight)
	buf := inputTensor.Float32s()
	if len(buf) != len(sample) {
		return nil, errors.Newf("input tensor size %d does not match preprocessed sample size %d", len(buf), len(sample)).
			Component("analyzer").
			Category(errors.CategoryAnalysis).
			Build()
	}
	copy(buf, sample)

	if status := e.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Component("analyzer").
			Category(errors.CategoryAnalysis).
			Build()
	}

	outputTensor := e.interpreter.GetOutputTensor(0)
	embedding := make([]float32, e.outputDim)
	copy(embedding, outputTensor.Float32s())
	return embedding, nil
}

// Dim returns the encoder's embedding dimension.
func (e *TFLiteEmbedder) Dim() int {
	return e.outputDim
}

// Close releases the interpreter and model.
func (e *TFLiteEmbedder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.interpreter != nil {
		e.interpreter.Delete()
		e.interpreter = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
}
