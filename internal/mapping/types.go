package mapping

// Output is the framework-to-checks mapping produced for one provider.
type Output struct {
	Framework    string        `json:"Framework"`
	Name         string        `json:"Name"`
	Version      *string       `json:"Version,omitempty"`
	Provider     string        `json:"Provider"`
	Description  *string       `json:"Description,omitempty"`
	Requirements []Requirement `json:"Requirements"`
}

type Requirement struct {
	ID          string      `json:"Id"`
	Name        string      `json:"Name"`
	Description *string     `json:"Description,omitempty"`
	Attributes  []Attribute `json:"Attributes"`
	Checks      []string    `json:"Checks"`
}

type Attribute struct {
	ItemID     string  `json:"ItemId"`
	Section    string  `json:"Section"`
	SubSection *string `json:"SubSection,omitempty"`
	SubGroup   *string `json:"SubGroup,omitempty"`
	Service    *string `json:"Service,omitempty"`
}

// CheckIDs returns every distinct check ID referenced by the mapping, in first-seen order.
func (o *Output) CheckIDs() []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, r := range o.Requirements {
		for _, c := range r.Checks {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			ids = append(ids, c)
		}
	}
	return ids
}
