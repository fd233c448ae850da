package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/babelia-vision/babelia-go/internal/errors"
)

// SignificancePrompts are the concepts an image is matched against to decide
// whether it depicts something meaningful.
var SignificancePrompts = []string{
	"a photograph of a human face",
	"a photograph of a person",
	"a clear recognizable object",
	"readable text or writing",
	"a scientific diagram or chart",
	"a map or schematic",
	"an artistic composition",
	"a photograph of an animal",
	"a photograph of a building or structure",
	"a photograph of a vehicle",
	"a historical document",
	"shocking or disturbing imagery",
	"a clear meaningful image",
}

// NoisePrompts are the concepts representing unstructured randomness.
var NoisePrompts = []string{
	"random noise",
	"static",
	"pure randomness",
	"meaningless pixels",
	"visual noise",
}

// defaultVocabFile is the vocabulary asset looked up next to the model when
// no explicit vocabulary path is configured.
const defaultVocabFile = "concepts.json"

// conceptEntry is one concept with its precomputed text embedding as it
// appears in the vocabulary asset.
type conceptEntry struct {
	Text      string    `json:"text"`
	Kind      string    `json:"kind"` // "significance" or "noise"
	Embedding []float32 `json:"embedding"`
}

// vocabFile is the on-disk layout of the vocabulary asset. Text embeddings
// are exported once from the text tower of the same model that produced the
// image encoder and shipped alongside it.
type vocabFile struct {
	Version  string         `json:"version"`
	Model    string         `json:"model"`
	Dim      int            `json:"dim"`
	Concepts []conceptEntry `json:"concepts"`
}

// Vocabulary holds the unit-normalized concept embeddings the semantic
// matcher scores images against.
type Vocabulary struct {
	Version      string
	Model        string
	Dim          int
	Significance []string    // concept texts, index-aligned with SigVectors
	Noise        []string    // concept texts, index-aligned with NoiseVectors
	SigVectors   [][]float32 // unit vectors
	NoiseVectors [][]float32 // unit vectors
}

// LoadVocabulary reads and validates a vocabulary asset. Every expected
// significance and noise prompt must be present with an embedding of the
// declared dimension. All vectors are L2-normalized in place so scoring can
// use plain dot products.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("analyzer").
			Category(errors.CategoryVocabLoad).
			Context("path", path).
			Build()
	}

	var vf vocabFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, errors.New(fmt.Errorf("vocabulary asset is not valid JSON: %w", err)).
			Component("analyzer").
			Category(errors.CategoryVocabLoad).
			Context("path", path).
			Build()
	}

	if vf.Dim <= 0 {
		return nil, errors.Newf("vocabulary asset declares invalid embedding dimension %d", vf.Dim).
			Component("analyzer").
			Category(errors.CategoryVocabLoad).
			Build()
	}

	byText := make(map[string]conceptEntry, len(vf.Concepts))
	for _, c := range vf.Concepts {
		byText[c.Text] = c
	}

	vocab := &Vocabulary{
		Version: vf.Version,
		Model:   vf.Model,
		Dim:     vf.Dim,
	}

	var missing []string
	collect := func(prompts []string, kind string) [][]float32 {
		vectors := make([][]float32, 0, len(prompts))
		for _, text := range prompts {
			entry, ok := byText[text]
			if !ok || entry.Kind != kind {
				missing = append(missing, text)
				continue
			}
			if len(entry.Embedding) != vf.Dim {
				missing = append(missing, fmt.Sprintf("%s (dim %d != %d)", text, len(entry.Embedding), vf.Dim))
				continue
			}
			vectors = append(vectors, normalizeL2(entry.Embedding))
		}
		return vectors
	}

	vocab.Significance = SignificancePrompts
	vocab.Noise = NoisePrompts
	vocab.SigVectors = collect(SignificancePrompts, "significance")
	vocab.NoiseVectors = collect(NoisePrompts, "noise")

	if len(missing) > 0 {
		return nil, errors.Newf("vocabulary asset is missing or mismatched for concepts: %s", strings.Join(missing, "; ")).
			Component("analyzer").
			Category(errors.CategoryVocabLoad).
			Context("path", path).
			Build()
	}

	return vocab, nil
}

// VocabPathFor resolves the vocabulary path for a model: an explicit
// configured path wins, otherwise the asset is expected next to the model.
func VocabPathFor(modelPath, vocabPath string) string {
	if vocabPath != "" {
		return vocabPath
	}
	return filepath.Join(filepath.Dir(modelPath), defaultVocabFile)
}

// normalizeL2 returns v scaled to unit length. Zero vectors pass through
// unchanged rather than dividing by zero.
func normalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
