// Package model defines the data structures used by the errata finder,
// including package identities, channels, channel families and advisories.
package model

import (
	"strings"
)

// PackageIdentity is the name-version-release-epoch-arch of a single RPM build
type PackageIdentity struct {
	Name    string  `json:"name"`
	Version string  `json:"version"`
	Release string  `json:"release"`
	Epoch   *string `json:"epoch"` // nil when the NVREA carried no epoch; never the same as "0"
	Arch    string  `json:"arch"`
}

// EVR returns the epoch:version-release triple of the identity
func (p PackageIdentity) EVR() EVR {
	return EVR{Epoch: p.Epoch, Version: p.Version, Release: p.Release}
}

// HasEpoch reports whether the identity carries an explicit epoch
func (p PackageIdentity) HasEpoch() bool {
	return p.Epoch != nil
}

// String renders the identity back into the epoch:name-version-release.arch form
func (p PackageIdentity) String() string {
	var b strings.Builder
	if p.Epoch != nil {
		b.WriteString(*p.Epoch)
		b.WriteByte(':')
	}
	b.WriteString(p.Name)
	b.WriteByte('-')
	b.WriteString(p.Version)
	b.WriteByte('-')
	b.WriteString(p.Release)
	b.WriteByte('.')
	b.WriteString(p.Arch)
	return b.String()
}

// ParseNVREA splits an RPM file name such as "foo-1.0-1.i386.rpm" or
// "1:bar-9-123a.ia64" into its name, version, release, epoch and arch.
//
// Field boundaries are found by position only: arch follows the last '.',
// release and version are delimited by the two preceding '-', and the epoch is
// whatever precedes the first ':'. Nothing is validated; an input that does not
// follow the convention yields misplaced fields rather than an error.
func ParseNVREA(filename string) PackageIdentity {
	s := strings.TrimSuffix(filename, ".rpm")

	archIdx := strings.LastIndexByte(s, '.')
	arch := s[archIdx+1:]
	if archIdx < 0 {
		archIdx = 0
	}

	relIdx := strings.LastIndexByte(s[:archIdx], '-')
	release := s[relIdx+1 : archIdx]
	if relIdx < 0 {
		relIdx = 0
	}

	verIdx := strings.LastIndexByte(s[:relIdx], '-')
	version := s[verIdx+1 : relIdx]
	if verIdx < 0 {
		verIdx = 0
	}

	var epoch *string
	epochIdx := strings.IndexByte(s, ':')
	if epochIdx > 0 {
		e := s[:epochIdx]
		epoch = &e
	}

	nameStart := epochIdx + 1
	if nameStart > verIdx {
		nameStart = verIdx
	}

	return PackageIdentity{
		Name:    s[nameStart:verIdx],
		Version: version,
		Release: release,
		Epoch:   epoch,
		Arch:    arch,
	}
}

// ParsePackage accepts either an NVREA file name or an rpm package URL
// (pkg:rpm/...) and returns the identity it describes
func ParsePackage(s string) (PackageIdentity, error) {
	if strings.HasPrefix(s, purlScheme) {
		return IdentityFromPURL(s)
	}
	return ParseNVREA(s), nil
}
