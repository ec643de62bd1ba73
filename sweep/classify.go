package sweep

import "regexp"

// UpdateStatus is the derived update state of a machine or session relative
// to the target disk image.
type UpdateStatus string

const (
	// StatusUnknown means the disk-image identity could not be resolved.
	StatusUnknown UpdateStatus = "Unknown"
	// StatusIneligible means the machine runs an image outside the managed
	// family and is never acted on.
	StatusIneligible UpdateStatus = "Ineligible"
	// StatusRestartRequired means the machine runs an older image of the
	// managed family and needs a restart to pick up the target version.
	StatusRestartRequired UpdateStatus = "RestartRequired"
	// StatusUpdateCompleted means the machine already runs the target image.
	StatusUpdateCompleted UpdateStatus = "UpdateCompleted"
)

// Classify maps a disk-image identifier to an update status. An unresolved
// identifier (empty string) is Unknown; this deliberately conflates "query
// timed out" and "host reports no image".
func Classify(imageID string, allVersions, target *regexp.Regexp) UpdateStatus {
	if imageID == "" {
		return StatusUnknown
	}
	if !allVersions.MatchString(imageID) {
		return StatusIneligible
	}
	if target.MatchString(imageID) {
		return StatusUpdateCompleted
	}
	return StatusRestartRequired
}
