package dups

// ScoreRule adds Weight to an image's quality score when Applies holds.
// Rules see the whole group so relative heuristics ("largest in group")
// can be expressed.
type ScoreRule struct {
	Name    string
	Weight  int
	Applies func(img *Image, group []*Image) bool
}

// Rule names accepted in configuration.
const (
	RuleGPS               = "gps"
	RuleLargestSize       = "largest-size"
	RuleLargestResolution = "largest-resolution"
	RuleEarliestDate      = "earliest-date"
)

// DefaultWeights is the weight of each default rule. No rule outweighs the
// sum of the others.
var DefaultWeights = map[string]int{
	RuleGPS:               4,
	RuleLargestSize:       3,
	RuleLargestResolution: 2,
	RuleEarliestDate:      2,
}

// DefaultRules returns the built-in rules in evaluation order. weights
// overrides DefaultWeights per rule name; missing names keep their default.
func DefaultRules(weights map[string]int) []ScoreRule {
	weight := func(name string) int {
		if w, ok := weights[name]; ok {
			return w
		}
		return DefaultWeights[name]
	}
	return []ScoreRule{
		{
			Name:   RuleGPS,
			Weight: weight(RuleGPS),
			Applies: func(img *Image, _ []*Image) bool {
				return img.HasGPS()
			},
		},
		{
			Name:   RuleLargestSize,
			Weight: weight(RuleLargestSize),
			Applies: func(img *Image, group []*Image) bool {
				for _, other := range group {
					if other.Size > img.Size {
						return false
					}
				}
				return img.Size > 0
			},
		},
		{
			Name:   RuleLargestResolution,
			Weight: weight(RuleLargestResolution),
			Applies: func(img *Image, group []*Image) bool {
				for _, other := range group {
					if other.Pixels() > img.Pixels() {
						return false
					}
				}
				return img.Pixels() > 0
			},
		},
		{
			Name:   RuleEarliestDate,
			Weight: weight(RuleEarliestDate),
			Applies: func(img *Image, group []*Image) bool {
				if img.Date.IsZero() {
					return false
				}
				for _, other := range group {
					if !other.Date.IsZero() && other.Date.Before(img.Date) {
						return false
					}
				}
				return true
			},
		},
	}
}

// Scorer computes additive quality scores from an ordered rule list.
type Scorer struct {
	rules []ScoreRule
}

// NewScorer creates a Scorer. With no rules it uses DefaultRules(nil).
func NewScorer(rules ...ScoreRule) *Scorer {
	if len(rules) == 0 {
		rules = DefaultRules(nil)
	}
	return &Scorer{rules: rules}
}

// Rules returns the rules in evaluation order.
func (s *Scorer) Rules() []ScoreRule {
	return s.rules
}

// Score returns the score of img within group.
func (s *Scorer) Score(img *Image, group []*Image) int {
	total := 0
	for _, r := range s.rules {
		if r.Applies(img, group) {
			total += r.Weight
		}
	}
	return total
}

// ScoreGroup scores every member, keyed by image ID.
func (s *Scorer) ScoreGroup(group []*Image) map[string]int {
	scores := make(map[string]int, len(group))
	for _, img := range group {
		scores[img.ID] = s.Score(img, group)
	}
	return scores
}
