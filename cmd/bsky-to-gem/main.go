package main

import (
	"context"
	stderrors "errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/symmetricalboy/bsky-to-gem/pkg/errors"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Execute(ctx)
	stop()

	if err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// reportError prints a fatal error with a hint matching its kind
func reportError(err error) {
	if stderrors.Is(err, errUsage) {
		return
	}

	if stderrors.Is(err, context.Canceled) {
		ui.PrintError("Export cancelled")
		return
	}

	ui.PrintError("Export failed", err.Error())
	switch errors.KindOf(err) {
	case errors.KindResolution:
		ui.PrintHint("check the handle spelling, e.g. alice.bsky.social")
	case errors.KindEmptyResult:
		ui.PrintHint("no archive was written; if the account has posts, its PDS may not be discoverable")
	case errors.KindFetch:
		ui.PrintHint("the hosting server may be unavailable; try again later")
	case errors.KindEstimatorUnavailable:
		ui.PrintHint("use --estimator chars to estimate without a tokenizer")
	}
}
