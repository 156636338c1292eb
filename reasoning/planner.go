package reasoning

import (
	"strings"

	"github.com/hupe1980/cogmesh/core"
)

// ActionPlanner turns one subgoal into candidate actions. Implementations
// must be deterministic and return at least one action per subgoal.
type ActionPlanner interface {
	Actions(subgoal string) []core.Action
}

// KeywordPlanner maps subgoals onto the subsystem operations their wording
// suggests. Unrecognized subgoals become generic execute actions with lower
// confidence.
type KeywordPlanner struct{}

var keywordActions = []struct {
	keywords   []string
	name       string
	confidence float64
}{
	{[]string{"retrieve", "recall", "find", "search", "look up"}, "search_memory", 0.8},
	{[]string{"store", "remember", "save", "record"}, "store_memory", 0.8},
	{[]string{"analyze", "infer", "reason", "conclude"}, "infer", 0.7},
	{[]string{"ingest", "learn", "import"}, "ingest_knowledge", 0.7},
	{[]string{"summarize", "synthesize", "combine"}, "synthesize_knowledge", 0.7},
}

// Actions implements ActionPlanner.
func (KeywordPlanner) Actions(subgoal string) []core.Action {
	lower := strings.ToLower(subgoal)
	for _, ka := range keywordActions {
		for _, kw := range ka.keywords {
			if strings.Contains(lower, kw) {
				return []core.Action{{
					Name:        ka.name,
					Params:      map[string]string{"subgoal": subgoal},
					Confidence:  ka.confidence,
					Explanation: "subgoal wording maps onto " + ka.name,
				}}
			}
		}
	}
	return []core.Action{{
		Name:        "execute_subgoal",
		Params:      map[string]string{"subgoal": subgoal},
		Confidence:  0.5,
		Explanation: "no specific operation recognized",
	}}
}

// Constraints bound what a plan may contain. Zero values disable the
// corresponding check.
type Constraints struct {
	// MaxActions caps the total action count.
	MaxActions int
	// ResourcesAvailable whitelists the resources actions may declare via
	// their "resource" parameter. Nil allows everything.
	ResourcesAvailable []string
	// PriorityThreshold is the minimum confidence every action must reach.
	PriorityThreshold float64
}

// Validate checks a list of actions against the constraints and reports the
// first violation.
func (c Constraints) Validate(actions []core.Action) (bool, string) {
	if len(actions) == 0 {
		return false, "plan has no actions"
	}
	if c.MaxActions > 0 && len(actions) > c.MaxActions {
		return false, "plan exceeds action limit"
	}
	for _, a := range actions {
		if a.Confidence < c.PriorityThreshold {
			return false, "action " + a.Name + " below confidence threshold"
		}
		if c.ResourcesAvailable == nil {
			continue
		}
		res, ok := a.Params["resource"]
		if !ok {
			continue
		}
		found := false
		for _, r := range c.ResourcesAvailable {
			if r == res {
				found = true
				break
			}
		}
		if !found {
			return false, "resource " + res + " unavailable"
		}
	}
	return true, ""
}
