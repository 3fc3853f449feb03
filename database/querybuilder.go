package database

import (
	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres" // registers the postgres dialect
	_ "github.com/doug-martin/goqu/v8/dialect/sqlite3"  // registers the sqlite3 dialect
	"github.com/doug-martin/goqu/v8/exp"

	"github.com/ortelius/errata-finder/model"
)

// queryBuilder renders the five pipeline lookups against the Spacewalk schema.
// Only the "strictly newer EVR" predicate differs between dialects.
type queryBuilder struct {
	dialect   goqu.DialectWrapper
	newerThan func(id model.PackageIdentity) exp.Expression
}

func newPostgresBuilder() queryBuilder {
	d := goqu.Dialect("postgres")
	return queryBuilder{
		dialect: d,
		// rhnpackageevr.evr is the evr_t composite, ordered by rpmver_cmp on the server
		newerThan: func(id model.PackageIdentity) exp.Expression {
			anchor := d.From(goqu.T("rhnpackageevr").As("anchor")).
				Select(goqu.I("anchor.evr")).
				Where(
					epochMatch("anchor.epoch", id.Epoch),
					goqu.I("anchor.version").Eq(id.Version),
					goqu.I("anchor.release").Eq(id.Release),
				)
			return goqu.I("evr.evr").Gt(anchor)
		},
	}
}

func newSQLiteBuilder() queryBuilder {
	return queryBuilder{
		dialect: goqu.Dialect("sqlite3"),
		newerThan: func(id model.PackageIdentity) exp.Expression {
			var epoch interface{}
			if id.Epoch != nil {
				epoch = *id.Epoch
			}
			return goqu.L(evrCmpFunc+"(?, ?, ?, ?, ?, ?) > 0",
				goqu.I("evr.epoch"), goqu.I("evr.version"), goqu.I("evr.release"),
				epoch, id.Version, id.Release)
		},
	}
}

// epochMatch is the null-aware epoch comparison: nil matches only NULL
func epochMatch(col string, epoch *string) exp.Expression {
	if epoch == nil {
		return goqu.I(col).IsNull()
	}
	return goqu.I(col).Eq(*epoch)
}

func (b queryBuilder) archID(label string) *goqu.SelectDataset {
	return b.dialect.From("rhnpackagearch").Select("id").Where(goqu.C("label").Eq(label))
}

func (b queryBuilder) channels(id model.PackageIdentity) (string, []interface{}, error) {
	return b.dialect.From(goqu.T("rhnchannelpackage").As("cp")).
		Select(goqu.I("cp.channel_id"), goqu.I("cp.package_id")).
		Join(goqu.T("rhnpackage").As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("cp.package_id")))).
		Join(goqu.T("rhnpackagename").As("n"), goqu.On(goqu.I("n.id").Eq(goqu.I("p.name_id")))).
		Join(goqu.T("rhnpackageevr").As("evr"), goqu.On(goqu.I("evr.id").Eq(goqu.I("p.evr_id")))).
		Where(
			goqu.I("n.name").Eq(id.Name),
			epochMatch("evr.epoch", id.Epoch),
			goqu.I("evr.version").Eq(id.Version),
			goqu.I("evr.release").Eq(id.Release),
			goqu.I("p.package_arch_id").Eq(b.archID(id.Arch)),
		).
		Prepared(true).ToSQL()
}

func (b queryBuilder) channelFamilies(channelIDs []int64) (string, []interface{}, error) {
	return b.dialect.From(goqu.T("rhnchannelfamily").As("f")).
		Select(goqu.I("f.id"), goqu.I("f.label")).
		Join(goqu.T("rhnchannelfamilymembers").As("fm"), goqu.On(goqu.I("fm.channel_family_id").Eq(goqu.I("f.id")))).
		Where(goqu.I("fm.channel_id").In(channelIDs)).
		Prepared(true).ToSQL()
}

func (b queryBuilder) upgradeCandidates(id model.PackageIdentity, familyIDs []int64) (string, []interface{}, error) {
	newer := b.dialect.From(goqu.T("rhnpackage").As("p")).
		Select(goqu.I("p.id")).
		Join(goqu.T("rhnpackagename").As("n"), goqu.On(goqu.I("n.id").Eq(goqu.I("p.name_id")))).
		Join(goqu.T("rhnpackageevr").As("evr"), goqu.On(goqu.I("evr.id").Eq(goqu.I("p.evr_id")))).
		Where(
			goqu.I("n.name").Eq(id.Name),
			goqu.I("p.package_arch_id").Eq(b.archID(id.Arch)),
			b.newerThan(id),
		)

	return b.dialect.From(goqu.T("rhnchannelpackage").As("cp")).
		Select(goqu.I("f.label").As("family_label"), goqu.I("c.label").As("channel_label"), goqu.I("cp.package_id")).
		Join(goqu.T("rhnchannel").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("cp.channel_id")))).
		Join(goqu.T("rhnchannelfamilymembers").As("fm"), goqu.On(goqu.I("fm.channel_id").Eq(goqu.I("c.id")))).
		Join(goqu.T("rhnchannelfamily").As("f"), goqu.On(
			goqu.I("f.id").Eq(goqu.I("fm.channel_family_id")),
			goqu.I("f.id").In(familyIDs),
		)).
		Where(goqu.I("cp.package_id").Eq(newer)).
		Prepared(true).ToSQL()
}

func (b queryBuilder) securityAdvisories(packageIDs []int64) (string, []interface{}, error) {
	return b.dialect.From(goqu.T("rhnerrata").As("e")).
		Select(goqu.I("e.advisory_name"), goqu.I("ep.package_id")).
		Join(goqu.T("rhnerratapackage").As("ep"), goqu.On(goqu.I("ep.errata_id").Eq(goqu.I("e.id")))).
		Where(
			goqu.I("e.advisory_type").Eq(string(model.AdvisoryTypeSecurity)),
			goqu.I("ep.package_id").In(packageIDs),
		).
		Prepared(true).ToSQL()
}

// enrich left joins the channel so packages outside any channel still yield a row
func (b queryBuilder) enrich(packageIDs []int64) (string, []interface{}, error) {
	return b.dialect.From(goqu.T("rhnerrata").As("e")).
		Select(
			goqu.I("e.advisory_name"), goqu.I("ep.package_id"),
			goqu.I("evr.epoch"), goqu.I("evr.version"), goqu.I("evr.release"),
			goqu.I("c.label"),
		).
		Join(goqu.T("rhnerratapackage").As("ep"), goqu.On(goqu.I("ep.errata_id").Eq(goqu.I("e.id")))).
		Join(goqu.T("rhnpackage").As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("ep.package_id")))).
		Join(goqu.T("rhnpackageevr").As("evr"), goqu.On(goqu.I("evr.id").Eq(goqu.I("p.evr_id")))).
		LeftJoin(goqu.T("rhnchannelpackage").As("cp"), goqu.On(goqu.I("cp.package_id").Eq(goqu.I("p.id")))).
		LeftJoin(goqu.T("rhnchannel").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("cp.channel_id")))).
		Where(
			goqu.I("e.advisory_type").Eq(string(model.AdvisoryTypeSecurity)),
			goqu.I("ep.package_id").In(packageIDs),
		).
		Prepared(true).ToSQL()
}
