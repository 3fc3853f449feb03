// Package errata walks from an RPM package identity to the security advisories
// that apply to its upgrades within the same channel families.
package errata

import (
	"context"

	"github.com/ortelius/errata-finder/model"
)

// Datastore is the read-only view of the package/errata database the pipeline needs.
// Each method is a single query; implementations return an empty slice, not an
// error, when nothing matches. Id arguments are never empty.
type Datastore interface {
	// Channels returns every channel membership of the package that exactly
	// matches the identity. A nil epoch matches only packages without an
	// epoch; an explicit epoch matches only the same explicit value.
	Channels(ctx context.Context, id model.PackageIdentity) ([]model.ChannelPackage, error)

	// ChannelFamilies returns the families the given channels are members of.
	ChannelFamilies(ctx context.Context, channelIDs []int64) ([]model.ChannelFamily, error)

	// UpgradeCandidates returns packages with the identity's name and arch and a
	// strictly greater EVR, once per channel of the given families they are in.
	UpgradeCandidates(ctx context.Context, id model.PackageIdentity, familyIDs []int64) ([]model.UpgradeCandidate, error)

	// SecurityAdvisories returns the security advisories linked to the packages.
	SecurityAdvisories(ctx context.Context, packageIDs []int64) ([]model.AdvisoryLink, error)

	// Enrich returns the security advisories of the packages joined with the
	// package EVR and, when the package is in a channel, that channel's label.
	Enrich(ctx context.Context, packageIDs []int64) ([]model.AdvisoryRecord, error)
}

// Pinger is implemented by datastores that can report whether their backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}
