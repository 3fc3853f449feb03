package model

import (
	"fmt"
	"strings"

	"github.com/package-url/packageurl-go"
)

const purlScheme = "pkg:"

// IdentityFromPURL converts an rpm package URL such as
// pkg:rpm/redhat/openssl@1.0.2k-19.el7?arch=x86_64&epoch=1 into a PackageIdentity.
// The version component must carry the release after its last '-'.
func IdentityFromPURL(purlStr string) (PackageIdentity, error) {
	parsed, err := packageurl.FromString(purlStr)
	if err != nil {
		return PackageIdentity{}, fmt.Errorf("failed to parse package url %q: %w", purlStr, err)
	}
	if parsed.Type != packageurl.TypeRPM {
		return PackageIdentity{}, fmt.Errorf("package url %q is of type %q, expected %q", purlStr, parsed.Type, packageurl.TypeRPM)
	}

	qualifiers := parsed.Qualifiers.Map()
	id := PackageIdentity{
		Name: parsed.Name,
		Arch: qualifiers["arch"],
	}

	version := parsed.Version
	if e, v, ok := strings.Cut(version, ":"); ok {
		id.Epoch = &e
		version = v
	}
	if e, ok := qualifiers["epoch"]; ok && e != "" {
		id.Epoch = &e
	}

	idx := strings.LastIndexByte(version, '-')
	if idx < 0 {
		return PackageIdentity{}, fmt.Errorf("package url %q has no release in version %q", purlStr, parsed.Version)
	}
	id.Version = version[:idx]
	id.Release = version[idx+1:]

	return id, nil
}

// PURL renders the identity as an rpm package URL. The namespace is left empty
// because an NVREA does not say which vendor built the package.
func (p PackageIdentity) PURL() string {
	qualifiers := map[string]string{}
	if p.Arch != "" {
		qualifiers["arch"] = p.Arch
	}
	if p.Epoch != nil {
		qualifiers["epoch"] = *p.Epoch
	}

	purl := packageurl.NewPackageURL(
		packageurl.TypeRPM,
		"",
		p.Name,
		p.Version+"-"+p.Release,
		packageurl.QualifiersFromMap(qualifiers),
		"",
	)
	return purl.ToString()
}
