// Package tokens estimates the LLM token footprint of an archive and trims
// the oldest posts so the archive fits a token budget.
package tokens

import (
	"context"
	"fmt"
	"math"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/symmetricalboy/bsky-to-gem/pkg/errors"
)

const (
	EstimatorTiktoken = "tiktoken"
	EstimatorChars    = "chars"

	// DefaultEncoding is the BPE encoding used by TiktokenEstimator
	DefaultEncoding = "cl100k_base"

	defaultCharactersPerToken = 4.0
)

// Estimator counts the tokens of a text
type Estimator interface {
	CountTokens(ctx context.Context, text string) (int, error)
	Name() string
}

// NewEstimator returns the estimator registered under name
func NewEstimator(name, encoding string) (Estimator, error) {
	switch name {
	case EstimatorTiktoken, "":
		return NewTiktokenEstimator(encoding), nil
	case EstimatorChars:
		return NewCharEstimator(), nil
	default:
		return nil, errors.New(errors.KindInvalidInput, "tokens", fmt.Sprintf("unknown estimator %q", name))
	}
}

// TiktokenEstimator counts tokens with a BPE encoding. The encoding is
// loaded on first use; its ranks may have to be downloaded, in which case
// a failure surfaces as an estimator-unavailable error.
type TiktokenEstimator struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewTiktokenEstimator creates an estimator for encoding
func NewTiktokenEstimator(encoding string) *TiktokenEstimator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenEstimator{encoding: encoding}
}

func (e *TiktokenEstimator) Name() string {
	return EstimatorTiktoken + "/" + e.encoding
}

func (e *TiktokenEstimator) CountTokens(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.once.Do(func() {
		e.enc, e.err = tiktoken.GetEncoding(e.encoding)
	})
	if e.err != nil {
		return 0, &errors.Error{
			Kind:    errors.KindEstimatorUnavailable,
			Op:      "tokens",
			Message: fmt.Sprintf("could not load encoding %s", e.encoding),
			Err:     e.err,
		}
	}

	return len(e.enc.Encode(text, nil, nil)), nil
}

// CharEstimator approximates tokens as characters divided by a fixed
// ratio, rounding up
type CharEstimator struct {
	CharactersPerToken float64
}

// NewCharEstimator creates a CharEstimator with 4 characters per token
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{CharactersPerToken: defaultCharactersPerToken}
}

func (e *CharEstimator) Name() string {
	return EstimatorChars
}

func (e *CharEstimator) CountTokens(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ratio := e.CharactersPerToken
	if ratio <= 0 {
		ratio = defaultCharactersPerToken
	}
	tokens := float64(utf8.RuneCountInString(text)) / ratio
	return int(math.Ceil(tokens)), nil
}

// EstimatorFunc adapts a function to Estimator
type EstimatorFunc func(ctx context.Context, text string) (int, error)

func (f EstimatorFunc) CountTokens(ctx context.Context, text string) (int, error) {
	return f(ctx, text)
}

func (f EstimatorFunc) Name() string {
	return "func"
}
