package deeplink

// Reserved query keys hoisted out of Parameters before a record reaches a
// listener.
const (
	paramSmartLinkIDShort = "slid"
	paramSmartLinkIDLong  = "smartLinkId"
	paramClickIDShort     = "cid"
	paramClickIDLong      = "clickId"
)

// Record is a deduplicated deep-link payload delivered to listeners.
type Record struct {
	URL         string            `json:"url,omitempty"`
	Path        string            `json:"path"`
	Parameters  map[string]string `json:"parameters"`
	SmartLinkID string            `json:"smartLinkId,omitempty"`
	ClickID     string            `json:"clickId,omitempty"`
}

// Equal reports field-by-field equality, including deep equality of
// Parameters. It backs the last-delivered suppression check.
func (r Record) Equal(other Record) bool {
	if r.URL != other.URL || r.Path != other.Path ||
		r.SmartLinkID != other.SmartLinkID || r.ClickID != other.ClickID {
		return false
	}
	if len(r.Parameters) != len(other.Parameters) {
		return false
	}
	for k, v := range r.Parameters {
		if ov, ok := other.Parameters[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (r Record) clone() Record {
	out := r
	out.Parameters = make(map[string]string, len(r.Parameters))
	for k, v := range r.Parameters {
		out.Parameters[k] = v
	}
	return out
}

// hoistAttribution moves the reserved attribution keys out of Parameters and
// into the top-level identifier fields. Existing identifiers are kept; the
// reserved keys are removed either way.
func hoistAttribution(r Record) Record {
	out := r.clone()
	if out.SmartLinkID == "" {
		if v, ok := out.Parameters[paramSmartLinkIDShort]; ok && v != "" {
			out.SmartLinkID = v
		} else if v, ok := out.Parameters[paramSmartLinkIDLong]; ok && v != "" {
			out.SmartLinkID = v
		}
	}
	if out.ClickID == "" {
		if v, ok := out.Parameters[paramClickIDShort]; ok && v != "" {
			out.ClickID = v
		} else if v, ok := out.Parameters[paramClickIDLong]; ok && v != "" {
			out.ClickID = v
		}
	}
	delete(out.Parameters, paramSmartLinkIDShort)
	delete(out.Parameters, paramSmartLinkIDLong)
	delete(out.Parameters, paramClickIDShort)
	delete(out.Parameters, paramClickIDLong)
	return out
}
