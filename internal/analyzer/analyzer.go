// Package analyzer scores images for semantic significance versus noise.
//
// Scoring runs in two stages: a statistical noise gate (histogram entropy
// and Sobel edge density) short-circuits unstructured randomness, and an
// embedding-based semantic matcher scores everything else against a fixed
// concept vocabulary. The final score fuses both stages.
package analyzer

import (
	"fmt"
	"image"
	"log/slog"
	"sort"

	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/errors"
	"github.com/babelia-vision/babelia-go/internal/logging"
)

// Fusion weights of the final significance score.
const (
	semanticWeight = 0.6
	noiseWeight    = 0.4
)

// Reasons reported for non-significant results.
const (
	ReasonPureNoise      = "pure_noise"
	ReasonBelowThreshold = "below_threshold"
)

// topMatchCount is how many leading concept matches a result carries.
const topMatchCount = 3

// ConceptScore pairs a vocabulary concept with its similarity to the image.
type ConceptScore struct {
	Concept string  `json:"concept"`
	Score   float32 `json:"score"`
}

// SemanticAssessment is the outcome of the embedding-based matcher.
type SemanticAssessment struct {
	Scores        map[string]float32 `json:"scores"`         // similarity per significance concept
	TopMatches    []ConceptScore     `json:"top_matches"`    // best matches, descending
	TopConcept    string             `json:"top_concept"`    // best significance concept
	SemanticScore float64            `json:"semantic_score"` // clamp(max sig - max noise, 0, 1)
}

// SignificanceResult is the full analysis outcome for one image.
type SignificanceResult struct {
	Score         float64             `json:"score"`
	IsSignificant bool                `json:"is_significant"`
	Reason        string              `json:"reason"`
	Noise         NoiseAssessment     `json:"noise"`
	Semantic      *SemanticAssessment `json:"semantic,omitempty"` // nil when the noise gate short-circuits
}

// Analyzer runs the two-stage significance pipeline.
type Analyzer struct {
	settings *conf.AnalyzerSettings
	embedder ImageEmbedder
	vocab    *Vocabulary
	logger   *slog.Logger
}

// New creates an analyzer around an embedder and its matching vocabulary.
// The vocabulary's embedding dimension must match the embedder's output.
func New(settings *conf.AnalyzerSettings, embedder ImageEmbedder, vocab *Vocabulary) (*Analyzer, error) {
	logger := logging.ForService("analyzer")
	if logger == nil {
		logger = slog.Default().With("service", "analyzer")
	}

	if embedder.Dim() != vocab.Dim {
		return nil, errors.Newf("embedder dimension %d does not match vocabulary dimension %d", embedder.Dim(), vocab.Dim).
			Component("analyzer").
			Category(errors.CategoryModelInit).
			Context("vocab_version", vocab.Version).
			Build()
	}

	return &Analyzer{
		settings: settings,
		embedder: embedder,
		vocab:    vocab,
		logger:   logger,
	}, nil
}

// NewFromSettings loads the encoder model and vocabulary asset from the
// configured paths and assembles the analyzer.
func NewFromSettings(settings *conf.AnalyzerSettings) (*Analyzer, error) {
	embedder, err := NewTFLiteEmbedder(settings)
	if err != nil {
		return nil, err
	}

	vocab, err := LoadVocabulary(VocabPathFor(settings.ModelPath, settings.VocabPath))
	if err != nil {
		embedder.Close()
		return nil, err
	}

	a, err := New(settings, embedder, vocab)
	if err != nil {
		embedder.Close()
		return nil, err
	}
	return a, nil
}

// Analyze scores an image. The noise gate runs first; images it flags never
// reach the semantic stage and score zero. The returned score is always in
// [0,1].
func (a *Analyzer) Analyze(img image.Image) (*SignificanceResult, error) {
	noise := assessNoise(img, a.settings.EdgeThreshold, a.settings.AnomalyThreshold)

	if noise.IsNoise {
		if a.settings.Debug {
			a.logger.Debug("noise gate rejected image",
				"entropy", noise.Entropy,
				"edge_density", noise.EdgeDensity,
				"noise_score", noise.NoiseScore)
		}
		return &SignificanceResult{
			Score:         0,
			IsSignificant: false,
			Reason:        ReasonPureNoise,
			Noise:         noise,
		}, nil
	}

	semantic, err := a.assessSemantics(img)
	if err != nil {
		return nil, err
	}

	score := semantic.SemanticScore*semanticWeight + (1-noise.NoiseScore)*noiseWeight
	score = clamp01(score)

	isSignificant := score >= a.settings.Threshold
	reason := ReasonBelowThreshold
	if isSignificant {
		reason = semantic.TopConcept
	}

	return &SignificanceResult{
		Score:         score,
		IsSignificant: isSignificant,
		Reason:        reason,
		Noise:         noise,
		Semantic:      semantic,
	}, nil
}

// assessSemantics embeds the image and scores it against the vocabulary.
func (a *Analyzer) assessSemantics(img image.Image) (*SemanticAssessment, error) {
	embedding, err := a.embedder.EmbedImage(img)
	if err != nil {
		return nil, err
	}
	unit := normalizeL2(embedding)

	scores := make(map[string]float32, len(a.vocab.Significance))
	ranked := make([]ConceptScore, 0, len(a.vocab.Significance))
	var maxSig float32
	for i, concept := range a.vocab.Significance {
		s := dot(unit, a.vocab.SigVectors[i])
		scores[concept] = s
		ranked = append(ranked, ConceptScore{Concept: concept, Score: s})
		if i == 0 || s > maxSig {
			maxSig = s
		}
	}

	var maxNoise float32
	for i, vec := range a.vocab.NoiseVectors {
		s := dot(unit, vec)
		if i == 0 || s > maxNoise {
			maxNoise = s
		}
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	top := ranked
	if len(top) > topMatchCount {
		top = top[:topMatchCount]
	}

	return &SemanticAssessment{
		Scores:        scores,
		TopMatches:    top,
		TopConcept:    top[0].Concept,
		SemanticScore: clamp01(float64(maxSig - maxNoise)),
	}, nil
}

// SelfTest analyzes a synthetic blank image and checks the result envelope.
// It exercises the full pipeline without touching the network.
func (a *Analyzer) SelfTest() error {
	blank := image.NewRGBA(image.Rect(0, 0, 224, 224))
	for i := range blank.Pix {
		blank.Pix[i] = 0xff
	}

	result, err := a.Analyze(blank)
	if err != nil {
		return fmt.Errorf("self test analysis failed: %w", err)
	}
	if result.Score < 0 || result.Score > 1 {
		return fmt.Errorf("self test produced out-of-range score %g", result.Score)
	}
	if result.Reason == "" {
		return fmt.Errorf("self test produced empty reason")
	}

	a.logger.Info("self test passed",
		"score", result.Score,
		"significant", result.IsSignificant,
		"reason", result.Reason)
	return nil
}

// Close releases the underlying embedder.
func (a *Analyzer) Close() {
	a.embedder.Close()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
