package deeplink

// Merge combines a locally parsed primary record with an optional richer
// secondary record. Secondary's non-empty scalar fields win and its
// parameters override primary's on key collision. Pure function.
func Merge(primary Record, secondary *Record) Record {
	out := primary.clone()
	if secondary == nil {
		return out
	}
	if secondary.URL != "" {
		out.URL = secondary.URL
	}
	if secondary.Path != "" {
		out.Path = secondary.Path
	}
	if secondary.SmartLinkID != "" {
		out.SmartLinkID = secondary.SmartLinkID
	}
	if secondary.ClickID != "" {
		out.ClickID = secondary.ClickID
	}
	for k, v := range secondary.Parameters {
		out.Parameters[k] = v
	}
	return out
}
