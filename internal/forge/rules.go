package forge

import (
	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/fault"
	"github.com/papapumpkin/strata/internal/log"
)

// DeclareRules registers the collection's rules in declaration order.
// Layer names resolve against the rule's configuration.
func DeclareRules(reg *compat.Registry, col *catalog.Collection) error {
	for i, spec := range col.Rules {
		opts := fault.With(fault.Rule(i), fault.Config(spec.Config))
		if spec.Config < 0 || spec.Config >= len(col.Configurations) {
			return fault.Configf(opts, "unknown configuration %d", spec.Config)
		}
		cfg := col.Configurations[spec.Config]
		pl, cl := cfg.LayerIndex(spec.ParentLayer), cfg.LayerIndex(spec.ChildLayer)

		var err error
		switch spec.Kind {
		case catalog.RuleIncompatible:
			err = reg.DeclareIncompatibility(spec.Child, spec.Parent, pl, cl, spec.Config)
		case catalog.RuleForced:
			err = reg.DeclareForcedCombination(spec.Child, spec.Parent, pl, cl, spec.Config)
		default:
			err = fault.Configf(append(opts, fault.Field("kind")), "unknown rule kind %q", spec.Kind)
		}
		if err != nil {
			return fault.Annotate(err, fault.Rule(i))
		}
		log.Debug(log.CatCompat, "rule declared", "rule", i, "kind", string(spec.Kind),
			"child", spec.Child, "parent", spec.Parent, "config", spec.Config)
	}
	return nil
}
