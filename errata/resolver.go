package errata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ortelius/errata-finder/model"
)

var (
	// ErrEmptyPackage is returned when no package string was supplied
	ErrEmptyPackage = errors.New("package not specified")
	// ErrInvalidPackage is returned when a package URL cannot be turned into an identity
	ErrInvalidPackage = errors.New("invalid package")
)

// Resolver runs the advisory pipeline against a datastore.
// It holds no per-request state and may be shared.
type Resolver struct {
	store  Datastore
	logger *zap.Logger
}

// NewResolver returns a Resolver over store. A nil logger disables logging.
func NewResolver(store Datastore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// ResolveAdvisories parses pkg and returns the security advisories of its
// upgrades, using a one-off Resolver over store
func ResolveAdvisories(ctx context.Context, pkg string, store Datastore) ([]model.AdvisoryRecord, error) {
	return NewResolver(store, nil).Resolve(ctx, pkg)
}

// Resolve parses pkg, an NVREA file name or an rpm package URL, and runs the pipeline for it
func (r *Resolver) Resolve(ctx context.Context, pkg string) ([]model.AdvisoryRecord, error) {
	if strings.TrimSpace(pkg) == "" {
		return nil, ErrEmptyPackage
	}
	id, err := model.ParsePackage(pkg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	return r.ResolveIdentity(ctx, id)
}

// ResolveIdentity runs the five lookups for an already parsed identity.
// A package that is in no channel, has no upgrade or whose upgrades carry no
// security advisory yields an empty, non-nil result.
func (r *Resolver) ResolveIdentity(ctx context.Context, id model.PackageIdentity) ([]model.AdvisoryRecord, error) {
	log := r.logger.With(zap.String("package", id.String()))
	none := []model.AdvisoryRecord{}

	start := time.Now()
	channels, err := r.store.Channels(ctx, id)
	if err != nil {
		resolveCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to look up channels: %w", err)
	}
	observeStage(stageChannels, start, len(channels))
	channelIDs := model.ChannelIDs(channels)
	log.Debug("channels", zap.Int64s("channel_ids", channelIDs))
	if len(channelIDs) == 0 {
		resolveCounter.WithLabelValues("not_found").Inc()
		return none, nil
	}

	start = time.Now()
	families, err := r.store.ChannelFamilies(ctx, channelIDs)
	if err != nil {
		resolveCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to look up channel families: %w", err)
	}
	observeStage(stageFamilies, start, len(families))
	familyIDs := model.FamilyIDs(families)
	log.Debug("channel families", zap.Int64s("family_ids", familyIDs))
	if len(familyIDs) == 0 {
		resolveCounter.WithLabelValues("no_family").Inc()
		return none, nil
	}

	start = time.Now()
	candidates, err := r.store.UpgradeCandidates(ctx, id, familyIDs)
	if err != nil {
		resolveCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to look up upgrade candidates: %w", err)
	}
	observeStage(stageCandidates, start, len(candidates))
	packageIDs := model.CandidatePackageIDs(candidates)
	log.Debug("upgrade candidates", zap.Int("rows", len(candidates)), zap.Int64s("package_ids", packageIDs))
	if len(packageIDs) == 0 {
		resolveCounter.WithLabelValues("up_to_date").Inc()
		return none, nil
	}

	start = time.Now()
	links, err := r.store.SecurityAdvisories(ctx, packageIDs)
	if err != nil {
		resolveCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to look up security advisories: %w", err)
	}
	observeStage(stageAdvisories, start, len(links))
	patched := model.AdvisoryPackageIDs(links)
	log.Debug("security advisories", zap.Int("links", len(links)))
	if len(patched) == 0 {
		resolveCounter.WithLabelValues("no_advisory").Inc()
		return none, nil
	}

	start = time.Now()
	records, err := r.store.Enrich(ctx, patched)
	if err != nil {
		resolveCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to enrich advisories: %w", err)
	}
	observeStage(stageEnrich, start, len(records))
	resolveCounter.WithLabelValues("found").Inc()

	if records == nil {
		return none, nil
	}
	return records, nil
}
