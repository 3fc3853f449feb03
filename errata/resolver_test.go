package errata

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortelius/errata-finder/model"
)

type fakePackage struct {
	id   int64
	name string
	evr  model.EVR
	arch string
}

type fakeErrata struct {
	name     string
	kind     model.AdvisoryType
	packages []int64
}

// fakeStore keeps the package/channel/errata tables in memory and answers the
// five lookups with the same semantics as the SQL stores.
type fakeStore struct {
	packages        []fakePackage
	channels        map[int64]string  // id -> label
	channelPackages [][2]int64        // channel id, package id
	families        map[int64]string  // id -> label
	members         [][2]int64        // family id, channel id
	errata          []fakeErrata
	calls           map[string]int
	failOn          string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		channels: map[int64]string{},
		families: map[int64]string{},
		calls:    map[string]int{},
	}
}

func (f *fakeStore) addPackage(id int64, nvrea string) {
	p := model.ParseNVREA(nvrea)
	f.packages = append(f.packages, fakePackage{id: id, name: p.Name, evr: p.EVR(), arch: p.Arch})
}

func (f *fakeStore) addChannel(id int64, label string, familyID int64, packageIDs ...int64) {
	f.channels[id] = label
	f.members = append(f.members, [2]int64{familyID, id})
	for _, pid := range packageIDs {
		f.channelPackages = append(f.channelPackages, [2]int64{id, pid})
	}
}

func (f *fakeStore) call(stage string) error {
	f.calls[stage]++
	if f.failOn == stage {
		return errors.New("connection reset by peer")
	}
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

func (f *fakeStore) Channels(_ context.Context, id model.PackageIdentity) ([]model.ChannelPackage, error) {
	if err := f.call(stageChannels); err != nil {
		return nil, err
	}
	var out []model.ChannelPackage
	for _, p := range f.packages {
		if p.name != id.Name || p.arch != id.Arch || !p.evr.Matches(id.EVR()) {
			continue
		}
		for _, cp := range f.channelPackages {
			if cp[1] == p.id {
				out = append(out, model.ChannelPackage{ChannelID: cp[0], PackageID: cp[1]})
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ChannelFamilies(_ context.Context, channelIDs []int64) ([]model.ChannelFamily, error) {
	if err := f.call(stageFamilies); err != nil {
		return nil, err
	}
	var out []model.ChannelFamily
	for _, m := range f.members {
		if contains(channelIDs, m[1]) {
			out = append(out, model.ChannelFamily{ID: m[0], Label: f.families[m[0]]})
		}
	}
	return out, nil
}

func (f *fakeStore) UpgradeCandidates(_ context.Context, id model.PackageIdentity, familyIDs []int64) ([]model.UpgradeCandidate, error) {
	if err := f.call(stageCandidates); err != nil {
		return nil, err
	}
	var out []model.UpgradeCandidate
	for _, m := range f.members {
		if !contains(familyIDs, m[0]) {
			continue
		}
		for _, cp := range f.channelPackages {
			if cp[0] != m[1] {
				continue
			}
			for _, p := range f.packages {
				if p.id == cp[1] && p.name == id.Name && p.arch == id.Arch && model.CompareEVR(p.evr, id.EVR()) > 0 {
					out = append(out, model.UpgradeCandidate{FamilyLabel: f.families[m[0]], ChannelLabel: f.channels[m[1]], PackageID: p.id})
				}
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SecurityAdvisories(_ context.Context, packageIDs []int64) ([]model.AdvisoryLink, error) {
	if err := f.call(stageAdvisories); err != nil {
		return nil, err
	}
	var out []model.AdvisoryLink
	for _, e := range f.errata {
		if e.kind != model.AdvisoryTypeSecurity {
			continue
		}
		for _, pid := range e.packages {
			if contains(packageIDs, pid) {
				out = append(out, model.AdvisoryLink{AdvisoryName: e.name, PackageID: pid})
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Enrich(_ context.Context, packageIDs []int64) ([]model.AdvisoryRecord, error) {
	if err := f.call(stageEnrich); err != nil {
		return nil, err
	}
	var out []model.AdvisoryRecord
	for _, e := range f.errata {
		if e.kind != model.AdvisoryTypeSecurity {
			continue
		}
		for _, pid := range e.packages {
			if !contains(packageIDs, pid) {
				continue
			}
			var evr string
			for _, p := range f.packages {
				if p.id == pid {
					evr = p.evr.String()
				}
			}
			found := false
			for _, cp := range f.channelPackages {
				if cp[1] == pid {
					label := f.channels[cp[0]]
					out = append(out, model.AdvisoryRecord{AdvisoryName: e.name, PackageID: pid, EVR: evr, ChannelLabel: &label})
					found = true
				}
			}
			if !found {
				out = append(out, model.AdvisoryRecord{AdvisoryName: e.name, PackageID: pid, EVR: evr})
			}
		}
	}
	return out, nil
}

func strRef(s string) *string { return &s }

// fooFamily builds family F with foo-1.0-1 in C1 and foo-2.0-1 in C2.
func fooFamily() *fakeStore {
	f := newFakeStore()
	f.families[10] = "F"
	f.addPackage(1, "foo-1.0-1.x86_64")
	f.addPackage(2, "foo-2.0-1.x86_64")
	f.addChannel(100, "c1-label", 10, 1)
	f.addChannel(200, "c2-label", 10, 2)
	return f
}

func TestResolveAdvisories_UpgradeWithSecurityAdvisory(t *testing.T) {
	f := fooFamily()
	f.errata = []fakeErrata{{name: "RHSA-2020:0001", kind: model.AdvisoryTypeSecurity, packages: []int64{2}}}

	got, err := ResolveAdvisories(context.Background(), "foo-1.0-1.x86_64.rpm", f)
	require.NoError(t, err)

	want := []model.AdvisoryRecord{
		{AdvisoryName: "RHSA-2020:0001", PackageID: 2, EVR: "2.0-1", ChannelLabel: strRef("c2-label")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveAdvisories_PackageNotInAnyChannel(t *testing.T) {
	f := fooFamily()
	f.errata = []fakeErrata{{name: "RHSA-2020:0001", kind: model.AdvisoryTypeSecurity, packages: []int64{2}}}

	got, err := ResolveAdvisories(context.Background(), "foo-1.5-1.x86_64.rpm", f)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, f.calls[stageFamilies], "pipeline must stop after an empty channel lookup")
}

func TestResolveAdvisories_OnlyOlderOrEqualPackages(t *testing.T) {
	f := fooFamily()
	f.errata = []fakeErrata{{name: "RHSA-2019:0100", kind: model.AdvisoryTypeSecurity, packages: []int64{1}}}

	got, err := ResolveAdvisories(context.Background(), "foo-2.0-1.x86_64.rpm", f)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, f.calls[stageAdvisories])
}

func TestResolveAdvisories_UpgradeWithoutSecurityAdvisory(t *testing.T) {
	f := fooFamily()
	f.errata = []fakeErrata{{name: "RHBA-2020:0002", kind: model.AdvisoryTypeBugFix, packages: []int64{2}}}

	got, err := ResolveAdvisories(context.Background(), "foo-1.0-1.x86_64.rpm", f)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, f.calls[stageEnrich])
}

func TestResolveAdvisories_OtherFamilyIsNotAnUpgrade(t *testing.T) {
	f := fooFamily()
	f.families[20] = "G"
	f.addPackage(3, "foo-3.0-1.x86_64")
	f.addChannel(300, "g-label", 20, 3)
	f.errata = []fakeErrata{{name: "RHSA-2021:0003", kind: model.AdvisoryTypeSecurity, packages: []int64{3}}}

	got, err := ResolveAdvisories(context.Background(), "foo-1.0-1.x86_64.rpm", f)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveAdvisories_OtherArchIsNotAnUpgrade(t *testing.T) {
	f := fooFamily()
	f.addPackage(4, "foo-3.0-1.noarch")
	f.channelPackages = append(f.channelPackages, [2]int64{200, 4})
	f.errata = []fakeErrata{{name: "RHSA-2021:0004", kind: model.AdvisoryTypeSecurity, packages: []int64{4}}}

	got, err := ResolveAdvisories(context.Background(), "foo-1.0-1.x86_64.rpm", f)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveAdvisories_EpochIsMatchedStrictly(t *testing.T) {
	f := newFakeStore()
	f.families[10] = "F"
	f.addPackage(1, "0:foo-1.0-1.x86_64")
	f.addPackage(2, "0:foo-2.0-1.x86_64")
	f.addChannel(100, "c1-label", 10, 1, 2)
	f.errata = []fakeErrata{{name: "RHSA-2020:0001", kind: model.AdvisoryTypeSecurity, packages: []int64{2}}}

	got, err := ResolveAdvisories(context.Background(), "foo-1.0-1.x86_64", f)
	require.NoError(t, err)
	assert.Empty(t, got, "no epoch must not match an explicit epoch 0")

	got, err = ResolveAdvisories(context.Background(), "0:foo-1.0-1.x86_64", f)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestResolveAdvisories_DuplicateCandidatesAcrossChannels(t *testing.T) {
	f := fooFamily()
	f.families[20] = "G"
	// foo-2.0-1 is also published in a second channel that belongs to both families
	f.addChannel(300, "c3-label", 10, 2)
	f.members = append(f.members, [2]int64{20, 100})
	f.errata = []fakeErrata{
		{name: "RHSA-2020:0001", kind: model.AdvisoryTypeSecurity, packages: []int64{2}},
		{name: "RHSA-2020:0005", kind: model.AdvisoryTypeSecurity, packages: []int64{2}},
	}

	got, err := ResolveAdvisories(context.Background(), "foo-1.0-1.x86_64.rpm", f)
	require.NoError(t, err)

	want := []model.AdvisoryRecord{
		{AdvisoryName: "RHSA-2020:0001", PackageID: 2, EVR: "2.0-1", ChannelLabel: strRef("c2-label")},
		{AdvisoryName: "RHSA-2020:0001", PackageID: 2, EVR: "2.0-1", ChannelLabel: strRef("c3-label")},
		{AdvisoryName: "RHSA-2020:0005", PackageID: 2, EVR: "2.0-1", ChannelLabel: strRef("c2-label")},
		{AdvisoryName: "RHSA-2020:0005", PackageID: 2, EVR: "2.0-1", ChannelLabel: strRef("c3-label")},
	}
	assert.ElementsMatch(t, want, got)
}

func TestResolveAdvisories_IsRepeatable(t *testing.T) {
	f := fooFamily()
	f.errata = []fakeErrata{{name: "RHSA-2020:0001", kind: model.AdvisoryTypeSecurity, packages: []int64{2}}}
	r := NewResolver(f, nil)

	first, err := r.Resolve(context.Background(), "foo-1.0-1.x86_64.rpm")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := r.Resolve(context.Background(), "foo-1.0-1.x86_64.rpm")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveAdvisories_PackageURL(t *testing.T) {
	f := fooFamily()
	f.errata = []fakeErrata{{name: "RHSA-2020:0001", kind: model.AdvisoryTypeSecurity, packages: []int64{2}}}

	got, err := ResolveAdvisories(context.Background(), "pkg:rpm/redhat/foo@1.0-1?arch=x86_64", f)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestResolveAdvisories_InputErrors(t *testing.T) {
	f := fooFamily()

	_, err := ResolveAdvisories(context.Background(), "  ", f)
	assert.ErrorIs(t, err, ErrEmptyPackage)

	_, err = ResolveAdvisories(context.Background(), "pkg:rpm/foo@1.0", f)
	assert.ErrorIs(t, err, ErrInvalidPackage)

	assert.Zero(t, f.calls[stageChannels])
}

func TestResolveAdvisories_DatastoreErrorsPropagate(t *testing.T) {
	stages := []string{stageChannels, stageFamilies, stageCandidates, stageAdvisories, stageEnrich}
	for _, stage := range stages {
		t.Run(stage, func(t *testing.T) {
			f := fooFamily()
			f.errata = []fakeErrata{{name: "RHSA-2020:0001", kind: model.AdvisoryTypeSecurity, packages: []int64{2}}}
			f.failOn = stage

			got, err := ResolveAdvisories(context.Background(), "foo-1.0-1.x86_64.rpm", f)
			assert.Error(t, err)
			assert.Nil(t, got)
		})
	}
}
