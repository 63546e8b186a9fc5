package model

// Verdict is what Site Review reports for one URL
type Verdict struct {
	Threat     string   `json:"threatname"` // Empty when no threat is known
	Categories []string `json:"categories"`
}

// HasThreat reports whether a threat label is present
func (v Verdict) HasThreat() bool {
	return v.Threat != ""
}

// Clone returns a copy that shares no memory with v
func (v Verdict) Clone() Verdict {
	cats := make([]string, len(v.Categories))
	copy(cats, v.Categories)
	return Verdict{Threat: v.Threat, Categories: cats}
}

// Results maps normalized URL keys to verdicts
type Results map[string]Verdict
