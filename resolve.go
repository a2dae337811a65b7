package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"mergetab/buffer"
	"mergetab/ctx"
	"mergetab/engine"
	"mergetab/gitconflict"
	"mergetab/logger"
	"mergetab/types"
)

type strategy string

const (
	strategyCurrent     strategy = "current"
	strategyIncoming    strategy = "incoming"
	strategyCombination strategy = "combination"
	strategyAI          strategy = "ai"
)

// mergeInput holds the three texts of one conflicted file
type mergeInput struct {
	FilePath string
	RepoPath string
	Base     string
	Current  string
	Incoming string
}

func runResolve(cmd *cobra.Command, args []string) error {
	config, _, err := setup()
	if err != nil {
		return err
	}
	logger.SetGlobalLevel(logger.ParseLogLevel(config.LogLevel))

	in, err := readInput()
	if err != nil {
		return err
	}

	var res engine.Resolver
	if strategy(resolveFlags.strategy) == strategyAI {
		if res, err = newResolver(config); err != nil {
			return err
		}
		if res == nil {
			return errors.New("the ai strategy needs a provider in the config")
		}
	}

	c, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	merged, summary, err := merge(c, in, strategy(resolveFlags.strategy), config, res)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d/%d blocks resolved, %d conflict points, %d by ai\n",
		summary.Resolved, summary.Total, summary.ConflictPoints, summary.AIResolved)

	if resolveFlags.out == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), merged)
		return err
	}
	return os.WriteFile(resolveFlags.out, []byte(merged), 0644)
}

func readInput() (mergeInput, error) {
	if resolveFlags.repo != "" {
		if resolveFlags.path == "" {
			return mergeInput{}, errors.New("--repo needs --path")
		}
		stages, err := gitconflict.Load(resolveFlags.repo, resolveFlags.path)
		if err != nil {
			return mergeInput{}, err
		}
		_, root, err := gitconflict.Open(resolveFlags.repo)
		if err != nil {
			return mergeInput{}, err
		}
		return mergeInput{
			FilePath: stages.Path,
			RepoPath: root,
			Base:     stages.Base,
			Current:  stages.Current,
			Incoming: stages.Incoming,
		}, nil
	}

	if resolveFlags.current == "" || resolveFlags.incoming == "" {
		return mergeInput{}, errors.New("either --repo and --path or --current and --incoming are required")
	}
	in := mergeInput{FilePath: resolveFlags.current}
	for _, f := range []struct {
		path string
		dst  *string
	}{
		{resolveFlags.current, &in.Current},
		{resolveFlags.incoming, &in.Incoming},
		{resolveFlags.base, &in.Base},
	} {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return mergeInput{}, err
		}
		*f.dst = string(data)
	}
	in.RepoPath = repoRoot(in.FilePath)
	return in, nil
}

// merge runs a headless session. The result starts from the base and blocks
// are resolved by strategy. Conflicts a strategy cannot settle stay as the
// base text.
func merge(c context.Context, in mergeInput, s strategy, config Config, res engine.Resolver) (string, engine.Summary, error) {
	result := buffer.NewDocument(in.Base)
	eng := engine.NewEngine(res, engine.EngineConfig{
		ContextLines:   config.ContextLines,
		ResolveTimeout: config.engineConfig().ResolveTimeout,
		GatherTimeout:  ctx.GatherTimeout,
	})
	eng.SetGatherer(ctx.NewGatherer(config.gathererConfig()))
	eng.Open(engine.Documents{
		Current:  buffer.NewDocument(in.Current),
		Result:   result,
		Incoming: buffer.NewDocument(in.Incoming),
		FilePath: filepath.ToSlash(in.FilePath),
		RepoPath: in.RepoPath,
	})
	if err := eng.Compare(c); err != nil {
		return "", engine.Summary{}, err
	}

	switch s {
	case strategyCurrent, strategyIncoming:
		side := types.TurnCurrent
		if s == strategyIncoming {
			side = types.TurnIncoming
		}
		eng.AcceptAll(side.Opposite(), true)
		eng.AcceptAll(side, false)
	case strategyCombination:
		eng.AcceptAll(types.TurnCurrent, true)
		eng.AcceptAll(types.TurnIncoming, true)
		for _, r := range eng.Mappings().ResultRanges() {
			if !r.IsComplete() && r.IsAllowCombination() {
				eng.Dispatch(c, types.ActionAcceptCombination, r.ID(), types.TurnBoth)
			}
		}
	case strategyAI:
		n := eng.ResolveAllWithAI(c)
		logger.Info("resolve: %d conflicts answered by ai", n)
	default:
		return "", engine.Summary{}, fmt.Errorf("unknown strategy %q", s)
	}

	return result.String(), eng.Summary(), nil
}

func runConflicts(cmd *cobra.Command, args []string) error {
	paths, err := gitconflict.Conflicted(conflictsRepo)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
