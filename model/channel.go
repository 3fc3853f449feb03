package model

// ChannelPackage is a channel's membership record for one package
type ChannelPackage struct {
	ChannelID int64 `json:"channel_id"`
	PackageID int64 `json:"package_id"`
}

// ChannelFamily groups channels; upgrades are only meaningful inside a family
type ChannelFamily struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// UpgradeCandidate is a package with a higher EVR than the queried one, reached
// through a channel of one of the queried package's families. The same package
// appears once per channel/family it was reached through.
type UpgradeCandidate struct {
	FamilyLabel  string `json:"family_label"`
	ChannelLabel string `json:"channel_label"`
	PackageID    int64  `json:"package_id"`
}

// ChannelIDs returns the distinct channel ids of the given memberships in first-seen order
func ChannelIDs(rows []ChannelPackage) []int64 {
	seen := make(map[int64]bool, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		if !seen[r.ChannelID] {
			seen[r.ChannelID] = true
			ids = append(ids, r.ChannelID)
		}
	}
	return ids
}

// FamilyIDs returns the distinct family ids in first-seen order
func FamilyIDs(rows []ChannelFamily) []int64 {
	seen := make(map[int64]bool, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		if !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// CandidatePackageIDs returns the distinct package ids of the candidates in first-seen order
func CandidatePackageIDs(rows []UpgradeCandidate) []int64 {
	seen := make(map[int64]bool, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		if !seen[r.PackageID] {
			seen[r.PackageID] = true
			ids = append(ids, r.PackageID)
		}
	}
	return ids
}

// AdvisoryPackageIDs returns the distinct package ids that have an advisory in first-seen order
func AdvisoryPackageIDs(rows []AdvisoryLink) []int64 {
	seen := make(map[int64]bool, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		if !seen[r.PackageID] {
			seen[r.PackageID] = true
			ids = append(ids, r.PackageID)
		}
	}
	return ids
}
