package model

// AdvisoryType is the errata classification stored alongside every advisory
type AdvisoryType string

const (
	// AdvisoryTypeSecurity marks an advisory that fixes a security flaw. It is the only type the finder reports.
	AdvisoryTypeSecurity AdvisoryType = "Security Advisory"
	// AdvisoryTypeBugFix marks an advisory that only fixes bugs.
	AdvisoryTypeBugFix AdvisoryType = "Bug Fix Advisory"
	// AdvisoryTypeEnhancement marks an advisory that adds features.
	AdvisoryTypeEnhancement AdvisoryType = "Product Enhancement Advisory"
)

// AdvisoryLink associates an advisory with a package it patches
type AdvisoryLink struct {
	AdvisoryName string `json:"advisory_name"`
	PackageID    int64  `json:"package_id"`
}

// AdvisoryRecord is one line of the finder's answer: an advisory together with
// the upgrade package that carries the fix and a channel it is published in
type AdvisoryRecord struct {
	AdvisoryName string  `json:"advisory_name"`
	PackageID    int64   `json:"package_id"`
	EVR          string  `json:"evr"`
	ChannelLabel *string `json:"channel_label"` // nil when the package is in no channel
}

// Channel returns the channel label or an empty string when there is none
func (r AdvisoryRecord) Channel() string {
	if r.ChannelLabel == nil {
		return ""
	}
	return *r.ChannelLabel
}
