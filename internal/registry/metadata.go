package registry

import "strconv"

// Metadata is the fixed token collection description of a registry.
type Metadata struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Version string `json:"version"`
}

var (
	VerificationMetadata = Metadata{Name: "MAGBot SBT", Symbol: "MBSBT", Version: "1.0.0"}
	CollateralMetadata   = Metadata{Name: "MAGBot ID", Symbol: "MBID", Version: "1.0.0"}
)

// TokenURI renders base followed by the decimal id. An empty base yields "".
func TokenURI(base string, id uint64) string {
	if base == "" {
		return ""
	}
	return base + strconv.FormatUint(id, 10)
}
