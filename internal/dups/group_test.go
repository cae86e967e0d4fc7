package dups_test

import (
	"testing"

	"smugdups/internal/dups"
)

func TestGroupImages(t *testing.T) {
	t.Run("drops singletons and hashless images", func(t *testing.T) {
		images := []*dups.Image{
			{ID: "1", Hash: "aaa"},
			{ID: "2", Hash: "bbb"},
			{ID: "3", Hash: "aaa"},
			{ID: "4"},
			{ID: "5"},
		}
		groups := dups.GroupImages(images, dups.NewScorer())
		if len(groups) != 1 {
			t.Fatalf("len(groups) = %d, want 1", len(groups))
		}
		if groups[0].Hash != "aaa" {
			t.Errorf("Hash = %q, want aaa", groups[0].Hash)
		}
		if groups[0].State != dups.StatePending {
			t.Errorf("State = %q, want pending", groups[0].State)
		}
	})

	t.Run("keeps first-seen hash order", func(t *testing.T) {
		images := []*dups.Image{
			{ID: "1", Hash: "zzz"},
			{ID: "2", Hash: "aaa"},
			{ID: "3", Hash: "aaa"},
			{ID: "4", Hash: "zzz"},
		}
		groups := dups.GroupImages(images, dups.NewScorer())
		if len(groups) != 2 {
			t.Fatalf("len(groups) = %d, want 2", len(groups))
		}
		if groups[0].Hash != "zzz" || groups[1].Hash != "aaa" {
			t.Errorf("order = %s, %s; want zzz, aaa", groups[0].Hash, groups[1].Hash)
		}
	})

	t.Run("counts a repeated image ID once", func(t *testing.T) {
		images := []*dups.Image{
			{ID: "1", Hash: "aaa", AlbumID: "A"},
			{ID: "1", Hash: "aaa", AlbumID: "B"},
		}
		if groups := dups.GroupImages(images, dups.NewScorer()); len(groups) != 0 {
			t.Errorf("len(groups) = %d, want 0", len(groups))
		}
	})

	t.Run("orders members by score then date then ID", func(t *testing.T) {
		images := []*dups.Image{
			{ID: "c", Hash: "h", Date: day(2)},
			{ID: "b", Hash: "h", Date: day(1)},
			{ID: "a", Hash: "h", Date: day(2)},
			{ID: "d", Hash: "h", Date: day(3), GPS: &dups.GPS{Latitude: 1, Longitude: 1}},
		}
		g := dups.GroupImages(images, dups.NewScorer())[0]

		var ids []string
		for _, img := range g.Images {
			ids = append(ids, img.ID)
		}
		// d: gps 4; b: earliest 2; a, c: 0, tie broken by ID.
		want := []string{"d", "b", "a", "c"}
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("order = %v, want %v", ids, want)
			}
		}
		if g.KeeperID != "d" {
			t.Errorf("KeeperID = %q, want d", g.KeeperID)
		}
		if g.Scores["d"] != 4 || g.Scores["b"] != 2 {
			t.Errorf("Scores = %v", g.Scores)
		}
	})

	t.Run("orders unknown dates after known ones", func(t *testing.T) {
		gpsOnly := dups.NewScorer(dups.ScoreRule{
			Name:    dups.RuleGPS,
			Weight:  4,
			Applies: func(img *dups.Image, _ []*dups.Image) bool { return img.HasGPS() },
		})
		images := []*dups.Image{
			{ID: "a", Hash: "h"},
			{ID: "c", Hash: "h", Date: day(2)},
			{ID: "b", Hash: "h"},
		}
		g := dups.GroupImages(images, gpsOnly)[0]

		want := []string{"c", "a", "b"}
		for i, img := range g.Images {
			if img.ID != want[i] {
				t.Fatalf("Images[%d] = %s, want order %v", i, img.ID, want)
			}
		}
		if g.KeeperID != "c" {
			t.Errorf("KeeperID = %q, want c", g.KeeperID)
		}
	})
}

func TestDuplicateGroup_KeeperAndOthers(t *testing.T) {
	g := dups.GroupImages([]*dups.Image{
		{ID: "1", Hash: "h", Size: 10},
		{ID: "2", Hash: "h", Size: 20},
		{ID: "3", Hash: "h", Size: 5},
	}, dups.NewScorer())[0]

	if g.Keeper().ID != "2" {
		t.Errorf("Keeper() = %s, want 2", g.Keeper().ID)
	}
	others := g.Others()
	if len(others) != 2 {
		t.Fatalf("len(Others()) = %d, want 2", len(others))
	}
	for _, img := range others {
		if img.ID == "2" {
			t.Error("Others() contains the keeper")
		}
	}
	if g.Image("3") == nil || g.Image("9") != nil {
		t.Error("Image() lookup mismatch")
	}
}

func TestDuplicateGroup_SetKeeper(t *testing.T) {
	newGroup := func() *dups.DuplicateGroup {
		return dups.GroupImages([]*dups.Image{
			{ID: "1", Hash: "h"},
			{ID: "2", Hash: "h"},
		}, dups.NewScorer())[0]
	}

	t.Run("changes keeper of a pending group", func(t *testing.T) {
		g := newGroup()
		if err := g.SetKeeper("2"); err != nil {
			t.Fatalf("SetKeeper() error = %v", err)
		}
		if g.KeeperID != "2" {
			t.Errorf("KeeperID = %q, want 2", g.KeeperID)
		}
		if others := g.Others(); len(others) != 1 || others[0].ID != "1" {
			t.Errorf("Others() = %v, want [1]", others)
		}
	})

	t.Run("rejects a non-member", func(t *testing.T) {
		g := newGroup()
		if err := g.SetKeeper("9"); err == nil {
			t.Error("SetKeeper(non-member) error = nil, want error")
		}
	})

	t.Run("rejects a resolved group", func(t *testing.T) {
		g := newGroup()
		g.State = dups.StateMoved
		if err := g.SetKeeper("2"); err == nil {
			t.Error("SetKeeper(resolved) error = nil, want error")
		}
		if g.KeeperID != "1" {
			t.Errorf("KeeperID = %q, want unchanged 1", g.KeeperID)
		}
	})
}

func TestDuplicateGroup_Clone(t *testing.T) {
	g := dups.GroupImages([]*dups.Image{
		{ID: "1", Hash: "h"},
		{ID: "2", Hash: "h"},
	}, dups.NewScorer())[0]

	c := g.Clone()
	c.State = dups.StateFailed
	c.Reason = "boom"
	c.KeeperID = "2"
	c.Images[0] = nil

	if g.State != dups.StatePending || g.Reason != "" || g.KeeperID != "1" {
		t.Errorf("original changed: state=%s reason=%q keeper=%s", g.State, g.Reason, g.KeeperID)
	}
	if g.Images[0] == nil {
		t.Error("original Images changed through the clone")
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in      string
		want    dups.Decision
		wantErr bool
	}{
		{"move", dups.DecisionMove, false},
		{"Skip", dups.DecisionSkip, false},
		{" DELETE ", dups.DecisionDelete, false},
		{"keep", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := dups.ParseDecision(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDecision(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDecision(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGroupState_Resolved(t *testing.T) {
	if dups.StatePending.Resolved() {
		t.Error("pending reported as resolved")
	}
	for _, s := range []dups.GroupState{dups.StateMoved, dups.StateSkipped, dups.StateDeleted, dups.StatePartial, dups.StateFailed} {
		if !s.Resolved() {
			t.Errorf("%s not reported as resolved", s)
		}
	}
}

func TestCalculateSavings(t *testing.T) {
	groups := dups.GroupImages([]*dups.Image{
		{ID: "1", Hash: "a", Size: 3000},
		{ID: "2", Hash: "a", Size: 3000},
		{ID: "3", Hash: "a", Size: 3000},
		{ID: "4", Hash: "b", Size: 500},
		{ID: "5", Hash: "b", Size: 500},
	}, dups.NewScorer())
	groups[1].State = dups.StateSkipped

	s := dups.CalculateSavings(groups)
	if s.Groups != 1 || s.Duplicates != 2 || s.Bytes != 6000 {
		t.Errorf("CalculateSavings() = %+v, want {1 2 6000}", s)
	}
	if s.Human() != "6.0 kB" {
		t.Errorf("Human() = %q, want 6.0 kB", s.Human())
	}
}
