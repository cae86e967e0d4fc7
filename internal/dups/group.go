package dups

import (
	"fmt"
	"sort"
	"strings"
)

// Decision is the user's disposition for a duplicate group.
type Decision string

const (
	// DecisionMove keeps the selected image and moves the rest to the review album.
	DecisionMove Decision = "move"
	// DecisionSkip leaves every image where it is.
	DecisionSkip Decision = "skip"
	// DecisionDelete keeps the selected image and permanently deletes the rest.
	DecisionDelete Decision = "delete"
)

// ParseDecision converts user input into a Decision.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionMove, DecisionSkip, DecisionDelete:
		return d, nil
	default:
		return "", fmt.Errorf("unknown decision %q (want move, skip or delete)", s)
	}
}

// GroupState tracks a group through resolution. Transitions out of
// StatePending happen once.
type GroupState string

const (
	StatePending GroupState = "pending"
	StateMoved   GroupState = "moved"
	StateSkipped GroupState = "skipped"
	StateDeleted GroupState = "deleted"
	StatePartial GroupState = "partial"
	StateFailed  GroupState = "failed"
)

// Resolved reports whether the group has left StatePending.
func (s GroupState) Resolved() bool {
	return s != StatePending
}

// DuplicateGroup is a set of images sharing one content hash.
type DuplicateGroup struct {
	Hash     string
	Images   []*Image // keeper-first ordering from the scorer
	Scores   map[string]int
	KeeperID string
	State    GroupState
	Reason   string
}

// Keeper returns the image that stays in place.
func (g *DuplicateGroup) Keeper() *Image {
	for _, img := range g.Images {
		if img.ID == g.KeeperID {
			return img
		}
	}
	return nil
}

// Others returns every image except the keeper.
func (g *DuplicateGroup) Others() []*Image {
	others := make([]*Image, 0, len(g.Images)-1)
	for _, img := range g.Images {
		if img.ID != g.KeeperID {
			others = append(others, img)
		}
	}
	return others
}

// Image returns the member with the given ID, or nil.
func (g *DuplicateGroup) Image(id string) *Image {
	for _, img := range g.Images {
		if img.ID == id {
			return img
		}
	}
	return nil
}

// SetKeeper overrides the suggested keeper. It is refused once the group
// has been resolved.
func (g *DuplicateGroup) SetKeeper(imageID string) error {
	if g.State.Resolved() {
		return fmt.Errorf("group %s is already %s", g.Hash, g.State)
	}
	if g.Image(imageID) == nil {
		return fmt.Errorf("image %s is not in group %s", imageID, g.Hash)
	}
	g.KeeperID = imageID
	return nil
}

// Clone returns a copy of g that can change state independently. Images
// and scores are shared; they are never modified after grouping.
func (g *DuplicateGroup) Clone() *DuplicateGroup {
	c := *g
	c.Images = append([]*Image(nil), g.Images...)
	return &c
}

// GroupImages groups images by content hash and scores every group.
// Images without a hash, repeated image IDs and hashes seen only once are
// dropped. Groups keep the order in which their hash was first seen; members
// are ordered by score (desc), date (asc), then ID (asc), and the first
// member becomes the suggested keeper.
func GroupImages(images []*Image, scorer *Scorer) []*DuplicateGroup {
	byHash := make(map[string][]*Image)
	var order []string
	seen := make(map[string]bool)

	for _, img := range images {
		if img.Hash == "" {
			continue
		}
		if seen[img.ID] {
			continue
		}
		seen[img.ID] = true
		if _, ok := byHash[img.Hash]; !ok {
			order = append(order, img.Hash)
		}
		byHash[img.Hash] = append(byHash[img.Hash], img)
	}

	var groups []*DuplicateGroup
	for _, hash := range order {
		members := byHash[hash]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, newGroup(hash, members, scorer))
	}
	return groups
}

func newGroup(hash string, members []*Image, scorer *Scorer) *DuplicateGroup {
	scores := scorer.ScoreGroup(members)

	sorted := append([]*Image(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if scores[a.ID] != scores[b.ID] {
			return scores[a.ID] > scores[b.ID]
		}
		if a.Date.IsZero() != b.Date.IsZero() {
			return b.Date.IsZero()
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})

	return &DuplicateGroup{
		Hash:     hash,
		Images:   sorted,
		Scores:   scores,
		KeeperID: sorted[0].ID,
		State:    StatePending,
	}
}
