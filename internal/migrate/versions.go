package migrate

// CurrentVersion is the schema version a completed migration records.
const CurrentVersion = "2.0.0"

// BaselineVersion is assumed for a store with an empty ledger: flat tasks.
const BaselineVersion = "1.0.0"

// Version is one entry of the schema history.
type Version struct {
	Version     string `json:"version"`
	Description string `json:"description"`
}

var versions = []Version{
	{Version: "1.0.0", Description: "Initial schema - flat task structure"},
	{Version: "1.1.0", Description: "Added code support fields"},
	{Version: "2.0.0", Description: "Multi-root task architecture with phases and workstreams"},
}

// Versions returns the schema history in order.
func Versions() []Version {
	return append([]Version(nil), versions...)
}

// Pending returns the versions after current, in order.
func Pending(current string) []Version {
	if current == "" {
		current = BaselineVersion
	}
	for i, v := range versions {
		if v.Version == current {
			return append([]Version(nil), versions[i+1:]...)
		}
	}
	// unknown version: everything above the baseline is pending
	return append([]Version(nil), versions[1:]...)
}

func describe(version string) string {
	for _, v := range versions {
		if v.Version == version {
			return v.Description
		}
	}
	return ""
}
