package database

import (
	"context"
	"fmt"

	"github.com/ortelius/errata-finder/model"
)

// rows is the part of pgx.Rows and *sql.Rows the stores read results through
type rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// queryFunc runs a query and returns its rows together with a function releasing them
type queryFunc func(ctx context.Context, query string, args ...interface{}) (rows, func(), error)

// sqlStore implements the five lookups for the relational stores. The
// postgres and sqlite stores only differ in their query builder and driver.
type sqlStore struct {
	qb    queryBuilder
	query queryFunc
}

func (s sqlStore) each(ctx context.Context, query string, args []interface{}, scan func(r rows) error) error {
	r, release, err := s.query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer release()

	for r.Next() {
		if err := scan(r); err != nil {
			return err
		}
	}
	return r.Err()
}

// Channels returns the channel memberships of the exact package
func (s sqlStore) Channels(ctx context.Context, id model.PackageIdentity) ([]model.ChannelPackage, error) {
	query, args, err := s.qb.channels(id)
	if err != nil {
		return nil, fmt.Errorf("failed to build channels query: %w", err)
	}

	var result []model.ChannelPackage
	err = s.each(ctx, query, args, func(r rows) error {
		var cp model.ChannelPackage
		if err := r.Scan(&cp.ChannelID, &cp.PackageID); err != nil {
			return err
		}
		result = append(result, cp)
		return nil
	})
	return result, err
}

// ChannelFamilies returns the families of the channels
func (s sqlStore) ChannelFamilies(ctx context.Context, channelIDs []int64) ([]model.ChannelFamily, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	query, args, err := s.qb.channelFamilies(channelIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build channel families query: %w", err)
	}

	var result []model.ChannelFamily
	err = s.each(ctx, query, args, func(r rows) error {
		var f model.ChannelFamily
		if err := r.Scan(&f.ID, &f.Label); err != nil {
			return err
		}
		result = append(result, f)
		return nil
	})
	return result, err
}

// UpgradeCandidates returns the newer builds of the package within the families
func (s sqlStore) UpgradeCandidates(ctx context.Context, id model.PackageIdentity, familyIDs []int64) ([]model.UpgradeCandidate, error) {
	if len(familyIDs) == 0 {
		return nil, nil
	}
	query, args, err := s.qb.upgradeCandidates(id, familyIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build upgrade candidates query: %w", err)
	}

	var result []model.UpgradeCandidate
	err = s.each(ctx, query, args, func(r rows) error {
		var c model.UpgradeCandidate
		if err := r.Scan(&c.FamilyLabel, &c.ChannelLabel, &c.PackageID); err != nil {
			return err
		}
		result = append(result, c)
		return nil
	})
	return result, err
}

// SecurityAdvisories returns the security advisories attached to the packages
func (s sqlStore) SecurityAdvisories(ctx context.Context, packageIDs []int64) ([]model.AdvisoryLink, error) {
	if len(packageIDs) == 0 {
		return nil, nil
	}
	query, args, err := s.qb.securityAdvisories(packageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build advisories query: %w", err)
	}

	var result []model.AdvisoryLink
	err = s.each(ctx, query, args, func(r rows) error {
		var l model.AdvisoryLink
		if err := r.Scan(&l.AdvisoryName, &l.PackageID); err != nil {
			return err
		}
		result = append(result, l)
		return nil
	})
	return result, err
}

// Enrich returns the advisories of the packages with their EVR and channel
func (s sqlStore) Enrich(ctx context.Context, packageIDs []int64) ([]model.AdvisoryRecord, error) {
	if len(packageIDs) == 0 {
		return nil, nil
	}
	query, args, err := s.qb.enrich(packageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build enrich query: %w", err)
	}

	var result []model.AdvisoryRecord
	err = s.each(ctx, query, args, func(r rows) error {
		var (
			rec   model.AdvisoryRecord
			evr   model.EVR
			label *string
		)
		if err := r.Scan(&rec.AdvisoryName, &rec.PackageID, &evr.Epoch, &evr.Version, &evr.Release, &label); err != nil {
			return err
		}
		rec.EVR = evr.String()
		rec.ChannelLabel = label
		result = append(result, rec)
		return nil
	})
	return result, err
}
