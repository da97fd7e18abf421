/**
 * Linguistic and behavioral enrichment over the combined scan text
 *
 * Every analyzer is a pure function of its input and the keyword tables.
 * The orchestrator runs them one state at a time; Enrich runs all four for
 * callers that do not track stages.
 */

package enrichment

import (
	"context"

	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

// Engine groups the four analyzers
type Engine struct {
	general     *GeneralAnalyzer
	codeMix     *CodeMixAnalyzer
	personality *PersonalityAnalyzer
	painPoints  *PainPointAnalyzer
}

// NewEngine builds an engine over lex; nil uses the embedded default tables
func NewEngine(lex *lexicon.Lexicon) *Engine {
	if lex == nil {
		lex = lexicon.MustDefault()
	}
	return &Engine{
		general:     NewGeneralAnalyzer(lex),
		codeMix:     NewCodeMixAnalyzer(lex),
		personality: NewPersonalityAnalyzer(lex),
		painPoints:  NewPainPointAnalyzer(lex),
	}
}

func (e *Engine) General(ctx context.Context, text string) (model.GeneralSignals, error) {
	if err := ctx.Err(); err != nil {
		return model.GeneralSignals{}, err
	}
	return e.general.Analyze(text), nil
}

func (e *Engine) LanguageMix(ctx context.Context, text string) (model.LanguageMixSignals, error) {
	if err := ctx.Err(); err != nil {
		return model.LanguageMixSignals{}, err
	}
	return e.codeMix.Analyze(text), nil
}

func (e *Engine) Personality(ctx context.Context, text string, posts int) (model.PersonalitySignals, error) {
	if err := ctx.Err(); err != nil {
		return model.PersonalitySignals{}, err
	}
	return e.personality.Analyze(text, posts), nil
}

func (e *Engine) PainPoints(ctx context.Context, text string) (model.PainPointSignals, error) {
	if err := ctx.Err(); err != nil {
		return model.PainPointSignals{}, err
	}
	return e.painPoints.Analyze(text), nil
}

// Enrich runs all analyzers and merges their output into one bundle
func (e *Engine) Enrich(ctx context.Context, text string, posts int) (*model.EnrichmentBundle, error) {
	general, err := e.General(ctx, text)
	if err != nil {
		return nil, err
	}
	mix, err := e.LanguageMix(ctx, text)
	if err != nil {
		return nil, err
	}
	personality, err := e.Personality(ctx, text, posts)
	if err != nil {
		return nil, err
	}
	pain, err := e.PainPoints(ctx, text)
	if err != nil {
		return nil, err
	}
	return &model.EnrichmentBundle{
		General:     general,
		LanguageMix: mix,
		Personality: personality,
		PainPoints:  pain,
	}, nil
}
