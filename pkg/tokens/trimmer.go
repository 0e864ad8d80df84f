package tokens

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/symmetricalboy/bsky-to-gem/pkg/archive"
	"github.com/symmetricalboy/bsky-to-gem/pkg/errors"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

// Result describes what the trimmer did with an archive
type Result struct {
	// Path is the archive to use: the trimmed one when a trim happened
	Path string

	Tokens        int
	TrimmedTokens int
	Plan          Plan
	Trimmed       bool

	// Skipped is set when no estimate could be made
	Skipped bool
}

// Trimmer checks archives against a token budget
type Trimmer struct {
	estimator Estimator
	confirmer Confirmer
	archive   *archive.Manager
	limit     int
	margin    float64
	logger    logger.Logger
}

// NewTrimmer creates a trimmer writing trimmed archives through mgr.
// A non-positive limit uses DefaultLimit.
func NewTrimmer(est Estimator, confirmer Confirmer, mgr *archive.Manager, limit int, margin float64, log logger.Logger) *Trimmer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if margin < 0 {
		margin = DefaultSafetyMargin
	}
	if confirmer == nil {
		confirmer = FixedConfirmer(false)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Trimmer{
		estimator: est,
		confirmer: confirmer,
		archive:   mgr,
		limit:     limit,
		margin:    margin,
		logger:    log,
	}
}

// Check reads archivePath back, estimates its tokens and, when over
// budget and confirmed, writes a trimmed archive holding the newest posts.
// posts must be the archive content in file order; nil reads them from
// the file. An unavailable estimator keeps the archive as is.
func (t *Trimmer) Check(ctx context.Context, archivePath string, posts []archive.Post, handle string) (*Result, error) {
	result := &Result{Path: archivePath}

	content, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive for token check: %w", err)
	}
	if posts == nil {
		if posts, err = archive.Read(archivePath); err != nil {
			return nil, err
		}
	}

	count, err := t.estimator.CountTokens(ctx, string(content))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		t.logger.WithError(err).WarnWithFields("token estimate unavailable", map[string]interface{}{
			"estimator": t.estimator.Name(),
		})
		ui.PrintWarning("Could not count tokens; keeping the archive as is", err)
		result.Skipped = true
		return result, nil
	}
	result.Tokens = count

	ui.PrintHighlight("Token Analysis:")
	ui.PrintInfo("  Total tokens", ui.FormatCount(count))
	ui.PrintInfo("  Limit", ui.FormatCount(t.limit))

	plan := NewPlan(count, len(posts), t.limit, t.margin)
	result.Plan = plan

	t.logger.InfoWithFields("token estimate", map[string]interface{}{
		"estimator": t.estimator.Name(),
		"tokens":    count,
		"limit":     t.limit,
		"posts":     len(posts),
	})

	if !plan.Exceeded() {
		ui.PrintSuccess("Token count is within limits.")
		return result, nil
	}

	ui.PrintWarning("TOKEN LIMIT EXCEEDED")
	ui.PrintInfo("  Excess tokens", ui.FormatCount(plan.Excess))
	ui.PrintInfo("  Posts to remove (oldest)", ui.FormatCount(plan.ToRemove))
	ui.PrintInfo("  Posts that would remain", ui.FormatCount(plan.ToKeep))

	ok, err := t.confirmer.Confirm(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("trim confirmation failed: %w", err)
	}
	if !ok {
		ui.Println("Keeping full export. You may need to trim it manually.")
		return result, nil
	}

	trimmed := posts[:plan.ToKeep]
	ui.Println(fmt.Sprintf("Trimming to newest %s posts...", ui.FormatCount(len(trimmed))))

	trimmedPath, err := t.archive.SaveTrimmed(handle, trimmed)
	if err != nil {
		return nil, err
	}
	result.Path = trimmedPath
	result.Trimmed = true

	ui.PrintSuccess("Trimmed export created!")
	ui.PrintInfo("Original", fmt.Sprintf("%s (%s posts)", archivePath, ui.FormatCount(len(posts))))
	ui.PrintInfo("Trimmed", fmt.Sprintf("%s (%s posts)", trimmedPath, ui.FormatCount(len(trimmed))))

	t.reportTrimmed(ctx, result)
	return result, nil
}

func (t *Trimmer) reportTrimmed(ctx context.Context, result *Result) {
	content, err := os.ReadFile(result.Path)
	if err != nil {
		t.logger.WithError(err).Warn("could not re-read trimmed archive")
		return
	}

	tokens, err := t.estimator.CountTokens(ctx, string(content))
	if err != nil {
		if !stderrors.Is(err, errors.ErrEstimatorUnavailable) {
			t.logger.WithError(err).Warn("could not re-estimate trimmed archive")
		}
		return
	}
	result.TrimmedTokens = tokens

	ui.PrintInfo("Trimmed tokens", ui.FormatCount(tokens))
	if tokens <= t.limit {
		ui.PrintSuccess("Trimmed file is within token limits!")
	} else {
		ui.PrintWarning("Trimmed file may still be too large. Consider further trimming.")
	}
}
