package release

import "time"

// =============================================================================
// Version Tag Generation
// =============================================================================

// versionTagLayout produces tags like v20240131-154502.
const versionTagLayout = "v20060102-150405"

// NewVersionTag derives a version tag from the given time.
// Tags are unique per run at one-second resolution, so repeated or
// overlapping runs never collide on the same image reference.
func NewVersionTag(t time.Time) string {
	return t.UTC().Format(versionTagLayout)
}
