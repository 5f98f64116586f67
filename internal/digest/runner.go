package digest

import (
	"context"
	"fmt"
	"time"

	"digestbot/internal/llm"
	"digestbot/pkg/logger"
	"digestbot/pkg/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner issues the generation tasks of one media item concurrently
type Runner struct {
	gen llm.Generator
}

func NewRunner(gen llm.Generator) *Runner {
	return &Runner{gen: gen}
}

// Run executes every task against the same media and returns one fragment
// per task, in task order. A failing or panicking task only affects its
// own fragment.
func (r *Runner) Run(ctx context.Context, tasks []model.Task, media *model.Media) []model.Fragment {
	fragments := make([]model.Fragment, len(tasks))

	var g errgroup.Group
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			fragments[i] = r.runOne(ctx, task, media)
			return nil
		})
	}
	_ = g.Wait()

	return fragments
}

func (r *Runner) runOne(ctx context.Context, task model.Task, media *model.Media) (frag model.Fragment) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Generation task panicked",
				zap.String("label", string(task.Label)),
				zap.Any("panic", rec))
			frag = model.Failure(task.Label, fmt.Errorf("internal error: %v", rec))
		}
	}()

	text, err := r.gen.Generate(ctx, llm.Request{
		Prompt:    task.Prompt,
		MaxTokens: task.MaxTokens,
		Media:     media,
	})
	if err != nil {
		logger.Warn("Generation task failed",
			zap.String("label", string(task.Label)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return model.Failure(task.Label, err)
	}

	logger.Debug("Generation task completed",
		zap.String("label", string(task.Label)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("text_length", len(text)))

	return model.Succeeded(task.Label, text)
}
