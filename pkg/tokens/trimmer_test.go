package tokens

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symmetricalboy/bsky-to-gem/pkg/archive"
	"github.com/symmetricalboy/bsky-to-gem/pkg/errors"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
)

// scriptedEstimator returns the given counts in order, then repeats the last
func scriptedEstimator(counts ...int) (Estimator, *int) {
	calls := 0
	return EstimatorFunc(func(ctx context.Context, text string) (int, error) {
		i := calls
		calls++
		if i >= len(counts) {
			i = len(counts) - 1
		}
		return counts[i], nil
	}), &calls
}

func writeArchive(t *testing.T, n int) (*archive.Manager, string, []archive.Post) {
	t.Helper()
	mgr, err := archive.NewManager(t.TempDir(), logger.NewTestLogger())
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := make([]archive.Post, n)
	for i := range posts {
		posts[i] = archive.Post{
			CreatedAt: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			Text:      fmt.Sprintf("post %d", i),
			Images:    []archive.Image{},
		}
	}

	path, err := mgr.Save("alice.test", posts)
	require.NoError(t, err)
	return mgr, path, posts
}

func TestCheckWithinLimit(t *testing.T) {
	mgr, path, posts := writeArchive(t, 10)
	est, calls := scriptedEstimator(1000)
	confirmer := ConfirmFunc(func(ctx context.Context, plan Plan) (bool, error) {
		t.Fatal("confirmation must not be requested")
		return false, nil
	})

	res, err := NewTrimmer(est, confirmer, mgr, 950000, 0.1, logger.NewTestLogger()).Check(context.Background(), path, posts, "alice.test")
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.Equal(t, 1000, res.Tokens)
	assert.False(t, res.Trimmed)
	assert.Equal(t, 1, *calls)
}

func TestCheckTrimsNewestPosts(t *testing.T) {
	mgr, path, posts := writeArchive(t, 10000)
	est, calls := scriptedEstimator(1000000, 945000)

	var proposed Plan
	confirmer := ConfirmFunc(func(ctx context.Context, plan Plan) (bool, error) {
		proposed = plan
		return true, nil
	})

	res, err := NewTrimmer(est, confirmer, mgr, 950000, 0.1, logger.NewTestLogger()).Check(context.Background(), path, posts, "alice.test")
	require.NoError(t, err)

	assert.Equal(t, 550, proposed.ToRemove)
	assert.Equal(t, 9450, proposed.ToKeep)
	assert.True(t, res.Trimmed)
	assert.NotEqual(t, path, res.Path)
	assert.True(t, strings.HasSuffix(res.Path, "_trimmed.json"))
	assert.Equal(t, 945000, res.TrimmedTokens)
	assert.Equal(t, 2, *calls)

	trimmed, err := archive.Read(res.Path)
	require.NoError(t, err)
	require.Len(t, trimmed, 9450)
	assert.Equal(t, posts[:9450], trimmed, "trimmed archive is the newest prefix")
	assert.Equal(t, "post 9999", trimmed[0].Text)

	_, err = os.Stat(path)
	assert.NoError(t, err, "original archive is kept")
}

func TestCheckDeclined(t *testing.T) {
	mgr, path, posts := writeArchive(t, 100)
	est, _ := scriptedEstimator(2000000)

	res, err := NewTrimmer(est, FixedConfirmer(false), mgr, 950000, 0.1, logger.NewTestLogger()).Check(context.Background(), path, posts, "alice.test")
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.False(t, res.Trimmed)
	assert.True(t, res.Plan.Exceeded())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no trimmed archive written")
}

func TestCheckEstimatorUnavailable(t *testing.T) {
	mgr, path, posts := writeArchive(t, 5)
	est := EstimatorFunc(func(ctx context.Context, text string) (int, error) {
		return 0, errors.Wrap(errors.KindEstimatorUnavailable, "tokens", stderrors.New("no encoder"))
	})
	log := logger.NewTestLogger()

	res, err := NewTrimmer(est, FixedConfirmer(true), mgr, 10, 0.1, log).Check(context.Background(), path, posts, "alice.test")
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.True(t, res.Skipped)
	assert.True(t, log.HasMessage("token estimate unavailable"))
}

func TestCheckReadsPostsWhenNil(t *testing.T) {
	mgr, path, _ := writeArchive(t, 4)
	est, _ := scriptedEstimator(400, 100)

	res, err := NewTrimmer(est, FixedConfirmer(true), mgr, 200, 0, logger.NewTestLogger()).Check(context.Background(), path, nil, "alice.test")
	require.NoError(t, err)
	require.True(t, res.Trimmed)
	assert.Equal(t, 2, res.Plan.ToRemove)

	trimmed, err := archive.Read(res.Path)
	require.NoError(t, err)
	assert.Len(t, trimmed, 2)
	assert.Equal(t, "post 3", trimmed[0].Text)
}

func TestCheckMissingArchive(t *testing.T) {
	mgr, _, _ := writeArchive(t, 1)
	est, _ := scriptedEstimator(1)

	_, err := NewTrimmer(est, nil, mgr, 0, 0.1, logger.NewTestLogger()).Check(context.Background(), filepath.Join(t.TempDir(), "gone.json"), nil, "alice.test")
	assert.Error(t, err)
}
