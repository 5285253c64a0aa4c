package compat

// RuleRecord is the audit form of a rule.
type RuleRecord struct {
	Child               string   `json:"child"`
	IncompatibleParents []string `json:"incompatibleParents"`
	Parents             []string `json:"parents"`
	ParentIndex         int      `json:"parentIndex"`
	ChildIndex          int      `json:"childIndex"`
	LayerIndex          int      `json:"layerIndex"`
	Forced              bool     `json:"forced"`
	MaxCount            int      `json:"maxCount"`
	Retired             bool     `json:"retired"`
}

// Audit is the serializable state of a registry and its restriction maps.
type Audit struct {
	Rules        []RuleRecord `json:"rules"`
	Restrictions []Entry      `json:"restrictions"`
}

// Export captures the current rule state. res may be nil.
func (r *Registry) Export(res *Restrictions) Audit {
	a := Audit{Rules: make([]RuleRecord, 0, len(r.order))}
	for _, rule := range r.Rules() {
		a.Rules = append(a.Rules, RuleRecord{
			Child:               rule.Key.Child,
			IncompatibleParents: nonNil(rule.IncompatibleParents),
			Parents:             nonNil(rule.Parents),
			ParentIndex:         rule.Key.ParentLayer,
			ChildIndex:          rule.Key.ChildLayer,
			LayerIndex:          rule.Key.Config,
			Forced:              rule.Forced,
			MaxCount:            rule.MaxCount,
			Retired:             rule.Retired,
		})
	}
	if res != nil {
		a.Restrictions = res.Entries()
	}
	if a.Restrictions == nil {
		a.Restrictions = []Entry{}
	}
	return a
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
