// Package router reads log sources and fans them out to the right parser
// family: automation output to the framework adapter registry, service logs
// to the application log parsers. Automation sources are mandatory,
// application sources are additive evidence that can never fail a run.
package router

import (
	"context"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/adapters"
	"github.com/tareqmamari/execintel/internal/applog"
	"github.com/tareqmamari/execintel/internal/errors"
	"github.com/tareqmamari/execintel/internal/model"
)

// Router dispatches log sources and merges each family chronologically.
type Router struct {
	registry *adapters.Registry
	family   *applog.Family
	logger   *zap.Logger
}

// New builds a router over the given adapter registry and application log
// parser family. Nil arguments get defaults.
func New(registry *adapters.Registry, family *applog.Family, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = adapters.NewRegistry(logger)
	}
	if family == nil {
		family = applog.NewFamily(logger)
	}
	return &Router{registry: registry, family: family, logger: logger.Named("router")}
}

// Collect reads every source in the collection and returns the automation
// and application event streams, each stable-sorted by timestamp so equal
// stamps keep their source order. A collection without automation sources
// is a configuration error. An unreadable automation file degrades to zero
// events with a warning; a missing application file is skipped with an info
// log.
func (r *Router) Collect(ctx context.Context, sources model.LogSourceCollection) (automation, application []model.ExecutionEvent, err error) {
	if len(sources.Automation) == 0 {
		return nil, nil, errors.NewNoAutomationLogs()
	}

	for _, src := range sources.Automation {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		raw, rerr := load(src)
		if rerr != nil {
			r.logger.Warn("automation log unreadable, continuing without it",
				zap.String("path", src.Path), zap.Error(rerr))
			continue
		}
		automation = append(automation, r.parseAutomation(src, raw)...)
	}

	for _, src := range sources.Application {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		raw, rerr := load(src)
		if rerr != nil {
			r.logger.Info("application log missing, skipping",
				zap.String("path", src.Path), zap.Error(rerr))
			continue
		}
		application = append(application, r.family.Parse(raw, src.ServiceName)...)
	}

	sortByTimestamp(automation)
	sortByTimestamp(application)
	return automation, application, nil
}

// load returns the source's bytes, preferring inline content over the path.
func load(src model.LogSource) ([]byte, error) {
	if src.Raw != nil {
		return src.Raw, nil
	}
	return os.ReadFile(src.Path)
}

// parseAutomation resolves the adapter, honoring an explicit framework name
// and falling back to detection when the name is unknown, then applies the
// source's explicit test identity to events the adapter could not name.
func (r *Router) parseAutomation(src model.LogSource, raw []byte) []model.ExecutionEvent {
	var adapter adapters.Adapter
	if src.Framework != "" {
		a, ok := r.registry.Get(src.Framework)
		if !ok {
			r.logger.Warn("unknown framework name, auto-detecting",
				zap.String("framework", src.Framework),
				zap.String("path", src.Path))
		} else {
			adapter = a
		}
	}
	if adapter == nil {
		adapter = r.registry.Detect(raw)
	}

	events := adapter.Parse(raw)
	r.logger.Debug("parsed automation log",
		zap.String("framework", adapter.Name()),
		zap.String("path", src.Path),
		zap.Int("events", len(events)))

	if src.TestName != "" {
		for i := range events {
			if events[i].TestName == "" {
				events[i].TestName = src.TestName
			}
		}
	}
	return events
}

func sortByTimestamp(events []model.ExecutionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
