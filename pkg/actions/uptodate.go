package actions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

// UpToDateAction only runs Inner if its outputs are missing or older than its inputs.
type UpToDateAction struct {
	Base         string
	Inputs       []string
	Outputs      []string
	SkipIfExists []string
	Inner        taskgraph.Action

	lock    sync.Mutex
	skipped bool
}

// UpToDate wraps inner with the input/output checks. Without any patterns, it simply runs
// inner.
func UpToDate(base string, inputs, outputs, skipIfExists []string, inner taskgraph.Action) *UpToDateAction {
	return &UpToDateAction{
		Base:         base,
		Inputs:       inputs,
		Outputs:      outputs,
		SkipIfExists: skipIfExists,
		Inner:        inner,
	}
}

func (a *UpToDateAction) Run(ctx context.Context) error {
	skip, err := a.CanSkip(ctx)
	if err != nil {
		return err
	}

	a.lock.Lock()
	a.skipped = skip
	a.lock.Unlock()

	if skip {
		return nil
	}

	return a.Inner.Run(ctx)
}

// Follow returns an action that runs inner unless the last Run of a skipped its own inner
// action. It guards the later commands of a task with the same checks.
func (a *UpToDateAction) Follow(inner taskgraph.Action) taskgraph.Action {
	return taskgraph.ActionFunc(func(ctx context.Context) error {
		a.lock.Lock()
		skipped := a.skipped
		a.lock.Unlock()

		if skipped {
			taskgraph.Log(ctx).Debug().Msg("skipped along with the first command")
			return nil
		}

		return inner.Run(ctx)
	})
}

// CanSkip reports whether running Inner can be skipped.
func (a *UpToDateAction) CanSkip(ctx context.Context) (bool, error) {
	logger := taskgraph.Log(ctx)

	if len(a.SkipIfExists) > 0 {
		found := 0
		for _, item := range a.SkipIfExists {
			matches, err := ResolvePatterns(a.Base, []string{item})
			if err != nil {
				return false, eris.Wrap(err, "failed to resolve skip_if_exists list")
			}

			if len(matches) > 0 {
				found++
			}
		}

		if found == len(a.SkipIfExists) {
			logger.Info().Msg("skipped because all skip files exist")
			return true, nil
		}
	}

	if len(a.Inputs) == 0 || len(a.Outputs) == 0 {
		return false, nil
	}

	inputList, err := ResolvePatterns(a.Base, a.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	var newestInput time.Time
	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() {
		return false, nil
	}

	for _, item := range a.Outputs {
		if strings.HasPrefix(item, "!") || strings.ContainsAny(item, globChars) {
			continue
		}

		path := item
		if !filepath.IsAbs(path) {
			path = filepath.Join(a.Base, path)
		}

		if _, err := os.Stat(path); err != nil {
			logger.Debug().Str("path", item).Msgf("output %s is missing", item)
			return false, nil
		}
	}

	outputList, err := ResolvePatterns(a.Base, a.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve output list")
	}

	if len(outputList) == 0 {
		return false, nil
	}

	var newestOutput time.Time
	oldestOutput := time.Now()
	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "failed to check output %s", item)
		}

		mt := info.ModTime()
		if mt.After(newestOutput) {
			newestOutput = mt
		}
		if mt.Before(oldestOutput) {
			oldestOutput = mt
		}
	}

	if newestOutput.Sub(oldestOutput) > 10*time.Minute {
		logger.Warn().Msgf("oldest output is %f minutes older than the newest output", newestOutput.Sub(oldestOutput).Minutes())
	}

	if oldestOutput.After(newestInput) {
		logger.Info().Msgf("nothing to do (output is %f seconds newer)", oldestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}

// SequenceAction runs its actions one after another and stops at the first failure.
type SequenceAction []taskgraph.Action

// Sequence combines the given actions into one.
func Sequence(actions ...taskgraph.Action) SequenceAction {
	return SequenceAction(actions)
}

func (s SequenceAction) Run(ctx context.Context) error {
	for _, action := range s {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := action.Run(ctx); err != nil {
			return err
		}
	}

	return nil
}
