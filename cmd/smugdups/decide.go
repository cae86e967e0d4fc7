package main

import (
	"fmt"
	"strconv"
	"strings"

	"smugdups/internal/dups"
)

type dedupeMode string

const (
	modeMove   dedupeMode = "move"
	modeDelete dedupeMode = "delete"
	modeAsk    dedupeMode = "ask"
)

func parseMode(s string) (dedupeMode, error) {
	switch m := dedupeMode(strings.ToLower(s)); m {
	case modeMove, modeDelete, modeAsk:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want move, delete or ask)", s)
	}
}

// answer is one parsed reply to the per-group prompt. keeper is a 1-based
// member index when the reply picks a new keeper, 0 otherwise.
type answer struct {
	decision dups.Decision
	keeper   int
}

func parseAnswer(s string, members int) (answer, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "m", "move":
		return answer{decision: dups.DecisionMove}, nil
	case "d", "delete":
		return answer{decision: dups.DecisionDelete}, nil
	case "", "s", "skip":
		return answer{decision: dups.DecisionSkip}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > members {
		return answer{}, fmt.Errorf("answer m, d, s or a member number 1-%d", members)
	}
	return answer{keeper: n}, nil
}

// decideAll gives every pending group the same decision.
func decideAll(groups []*dups.DuplicateGroup, d dups.Decision) []dups.ResolveDecision {
	decisions := make([]dups.ResolveDecision, 0, len(groups))
	for _, g := range groups {
		if g.State.Resolved() {
			continue
		}
		decisions = append(decisions, dups.ResolveDecision{Hash: g.Hash, Decision: d})
	}
	return decisions
}

// countDeletes returns how many images the decisions would delete.
func countDeletes(groups []*dups.DuplicateGroup, decisions []dups.ResolveDecision) int {
	byHash := make(map[string]*dups.DuplicateGroup, len(groups))
	for _, g := range groups {
		byHash[g.Hash] = g
	}
	n := 0
	for _, d := range decisions {
		if g := byHash[d.Hash]; g != nil && d.Decision == dups.DecisionDelete {
			n += len(g.Others())
		}
	}
	return n
}

func confirmDeletes(decisions []dups.ResolveDecision) {
	for i := range decisions {
		if decisions[i].Decision == dups.DecisionDelete {
			decisions[i].Confirmed = true
		}
	}
}
