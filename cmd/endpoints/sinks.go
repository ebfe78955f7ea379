package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/storage"
	"github.com/FranksOps/endpoints/internal/storage/csvbackend"
	"github.com/FranksOps/endpoints/internal/storage/jsonbackend"
	"github.com/FranksOps/endpoints/internal/storage/postgres"
	"github.com/FranksOps/endpoints/internal/storage/sqlite"
	"github.com/FranksOps/endpoints/internal/storage/xlsxbackend"
	"golang.org/x/sync/errgroup"
)

// sinkSpec is one parsed --out value.
type sinkSpec struct {
	Kind   string
	Target string
}

func (s sinkSpec) String() string { return s.Kind + ":" + s.Target }

var sinkKinds = map[string]bool{
	"csv":      true,
	"json":     true,
	"sqlite":   true,
	"postgres": true,
	"xlsx":     true,
}

// parseSink splits "kind:target". The target may itself contain colons, as
// postgres DSNs do.
func parseSink(value string) (sinkSpec, error) {
	kind, target, ok := strings.Cut(value, ":")
	kind = strings.ToLower(strings.TrimSpace(kind))
	target = strings.TrimSpace(target)
	if !ok || target == "" {
		return sinkSpec{}, fmt.Errorf("output %q: want kind:target", value)
	}
	if !sinkKinds[kind] {
		return sinkSpec{}, fmt.Errorf("output %q: unknown kind %q", value, kind)
	}
	return sinkSpec{Kind: kind, Target: target}, nil
}

func openSink(ctx context.Context, spec sinkSpec) (storage.Backend, error) {
	switch spec.Kind {
	case "csv":
		return csvbackend.New(spec.Target)
	case "json":
		return jsonbackend.New(spec.Target)
	case "sqlite":
		return sqlite.New(spec.Target)
	case "postgres":
		return postgres.New(ctx, spec.Target)
	case "xlsx":
		return xlsxbackend.New(spec.Target)
	}
	return nil, fmt.Errorf("unknown output kind %q", spec.Kind)
}

type openFunc func(context.Context, sinkSpec) (storage.Backend, error)

// exportAll writes records to every sink concurrently. The first failure
// cancels the others and is returned.
func exportAll(ctx context.Context, open openFunc, specs []sinkSpec, scanID string, records []endpoint.Record) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, spec := range specs {
		g.Go(func() error {
			b, err := open(ctx, spec)
			if err != nil {
				return fmt.Errorf("open %s: %w", spec, err)
			}
			if err := b.Save(ctx, scanID, records); err != nil {
				b.Close()
				return fmt.Errorf("save %s: %w", spec, err)
			}
			if err := b.Close(); err != nil {
				return fmt.Errorf("close %s: %w", spec, err)
			}
			return nil
		})
	}
	return g.Wait()
}
