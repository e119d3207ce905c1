package compose

import "riverwatch.dev/agent/pkg/model"

// actionRule is one row of the static suggested-actions table. A rule
// applies if its predicate returns true; matching rules contribute their
// action in table order, and the same action is never duplicated.
type actionRule struct {
	action    string
	predicate func(kind model.SourceKind, priority model.Priority, permitCats map[model.PermitCategory]bool, rain model.RainfallCategory) bool
}

var actionRules = []actionRule{
	{
		action: "Dispatch a field crew to verify gauge readings",
		predicate: func(_ model.SourceKind, priority model.Priority, _ map[model.PermitCategory]bool, _ model.RainfallCategory) bool {
			return priority == model.PriorityHigh
		},
	},
	{
		action: "Notify downstream flood warning duty officer",
		predicate: func(kind model.SourceKind, priority model.Priority, _ map[model.PermitCategory]bool, _ model.RainfallCategory) bool {
			return (kind == model.SourceKindFlood || kind == model.SourceKindMixed) && priority != model.PriorityLow
		},
	},
	{
		action: "Review upstream discharge consents for correlated activity",
		predicate: func(_ model.SourceKind, _ model.Priority, permitCats map[model.PermitCategory]bool, _ model.RainfallCategory) bool {
			return permitCats[model.PermitDischarge]
		},
	},
	{
		action: "Check abstraction licences against current flow",
		predicate: func(kind model.SourceKind, _ model.Priority, permitCats map[model.PermitCategory]bool, _ model.RainfallCategory) bool {
			return kind == model.SourceKindHydrology && permitCats[model.PermitAbstraction]
		},
	},
	{
		action: "Cross-check with heavy-rainfall advisory before escalating",
		predicate: func(_ model.SourceKind, _ model.Priority, _ map[model.PermitCategory]bool, rain model.RainfallCategory) bool {
			return rain == model.RainfallHeavy
		},
	},
	{
		action: "Log for trend monitoring; no immediate action required",
		predicate: func(_ model.SourceKind, priority model.Priority, _ map[model.PermitCategory]bool, _ model.RainfallCategory) bool {
			return priority == model.PriorityLow
		},
	},
}

// suggestedActions selects every rule whose predicate matches, in table
// order.
func suggestedActions(kind model.SourceKind, priority model.Priority, permitCats map[model.PermitCategory]bool, rain model.RainfallCategory) []string {
	actions := make([]string, 0, len(actionRules))
	for _, rule := range actionRules {
		if rule.predicate(kind, priority, permitCats, rain) {
			actions = append(actions, rule.action)
		}
	}
	return actions
}
