package model

import (
	rpmversion "github.com/knqyf263/go-rpm-version"
)

// EVR is the epoch:version-release triple RPM orders packages by
type EVR struct {
	Epoch   *string `json:"epoch"`
	Version string  `json:"version"`
	Release string  `json:"release"`
}

// NewEVR builds an EVR from database columns, treating an empty epoch as absent
func NewEVR(epoch, version, release string) EVR {
	evr := EVR{Version: version, Release: release}
	if epoch != "" {
		evr.Epoch = &epoch
	}
	return evr
}

// String formats the EVR as epoch:version-release, omitting the epoch when absent
func (e EVR) String() string {
	s := e.Version + "-" + e.Release
	if e.Epoch != nil {
		return *e.Epoch + ":" + s
	}
	return s
}

// SameEpoch reports whether both epochs are absent or both are present and equal.
// An absent epoch never matches an explicit one, not even "0".
func SameEpoch(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}

// Matches reports whether two EVRs identify the same build under the
// null-aware epoch rule used for package lookups
func (e EVR) Matches(other EVR) bool {
	return SameEpoch(e.Epoch, other.Epoch) && e.Version == other.Version && e.Release == other.Release
}

// CompareEVR orders two EVRs the way rpm does: epoch numerically (absent
// sorts as 0), then version and release segment by segment.
//
//	 1: a is newer than b
//	 0: a and b are the same version
//	-1: b is newer than a
func CompareEVR(a, b EVR) int {
	return rpmversion.NewVersion(a.rpmString()).Compare(rpmversion.NewVersion(b.rpmString()))
}

func (e EVR) rpmString() string {
	if e.Epoch == nil {
		return "0:" + e.Version + "-" + e.Release
	}
	return e.String()
}
