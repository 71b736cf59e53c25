package domain

import (
	"context"
	"errors"
	"log/slog"

	m "gooze.dev/pkg/schemata/internal/model"
)

// rollback finds the mutants that keep the instrumented program from
// compiling. It first checks that the unmodified source builds; if it does
// not, buildErr is returned unchanged because no mutant is to blame.
func (o *orchestrator) rollback(ctx context.Context, registry *m.Registry, buildErr error) (map[uint]struct{}, error) {
	unit := registry.Source

	pristine, err := o.builder.Build(ctx, m.BuildInput{Source: unit, Code: unit.Content})
	if err != nil {
		slog.Info("Unmodified source does not compile either", "source", unit.Name())
		return nil, buildErr
	}

	o.release(ctx, pristine)

	culprits := make(map[uint]struct{})
	if err := o.bisect(ctx, registry, registry.Mutations, culprits); err != nil {
		return nil, err
	}

	if len(culprits) == 0 {
		return nil, buildErr
	}

	slog.Info("Isolated mutants that break the build", "source", unit.Name(), "count", len(culprits))

	return culprits, nil
}

// bisect is called with a failing set of mutations and adds the ones that
// fail on their own, or in a pair whose halves both compile, to culprits.
func (o *orchestrator) bisect(ctx context.Context, registry *m.Registry, mutations []m.Mutation, culprits map[uint]struct{}) error {
	if len(mutations) == 1 {
		culprits[mutations[0].ID] = struct{}{}
		slog.Debug("Mutant breaks the build", "id", mutations[0].ID, "kind", mutations[0].Kind)

		return nil
	}

	mid := len(mutations) / 2
	halves := [][]m.Mutation{mutations[:mid], mutations[mid:]}
	failing := 0

	for _, half := range halves {
		compiles, err := o.compiles(ctx, registry, half)
		if err != nil {
			return err
		}

		if compiles {
			continue
		}

		failing++

		if err := o.bisect(ctx, registry, half, culprits); err != nil {
			return err
		}
	}

	// Both halves compile on their own: the mutations only conflict together.
	if failing == 0 {
		for _, mutation := range mutations {
			culprits[mutation.ID] = struct{}{}
		}
	}

	return nil
}

func (o *orchestrator) compiles(ctx context.Context, registry *m.Registry, mutations []m.Mutation) (bool, error) {
	artifact, err := o.buildSubset(ctx, registry, mutations)
	if err == nil {
		o.release(ctx, artifact)
		return true, nil
	}

	var compileErr *m.BuildError
	if errors.As(err, &compileErr) {
		return false, nil
	}

	return false, err
}

func (o *orchestrator) release(ctx context.Context, artifact m.Artifact) {
	if err := o.builder.Release(context.WithoutCancel(ctx), artifact); err != nil {
		slog.Warn("Failed to release artifact", "workspace", artifact.Workspace, "error", err)
	}
}
