package registry

import (
	"testing"
	"time"

	"github.com/holomesh/holomesh/pkg/api"
	"github.com/holomesh/holomesh/pkg/clock"
)

func TestSearch(t *testing.T) {
	clk := clock.NewManual(epoch)
	r := testRegistry(clk)

	mustCreate := func(spec RoomSpec) {
		t.Helper()
		if _, err := r.Create(spec); err != nil {
			t.Fatal(err)
		}
	}
	mustCreate(RoomSpec{Id: "gallery", Name: "Art Gallery", Description: "sculpture showcase"})
	mustCreate(RoomSpec{Id: "studio", Name: "Studio", Description: "art jam sessions"})
	mustCreate(RoomSpec{Id: "hideout", Name: "Art Cellar", Private: true})
	mustCreate(RoomSpec{Id: "arena", Name: "Arena", Capacity: 16, Settings: Settings{Capabilities: []string{"video"}}})
	for _, u := range []string{"u1", "u2", "u3"} {
		if err := r.AddParticipant("arena", api.Participant{Id: u}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("PrivateExcluded", func(t *testing.T) {
		for _, info := range r.Search("art", api.SearchFilters{}) {
			if info.Id == "hideout" {
				t.Fatal("private room leaked into search results")
			}
		}
	})

	t.Run("NameBeatsDescription", func(t *testing.T) {
		got := r.Search("art", api.SearchFilters{})
		if len(got) != 2 {
			t.Fatalf("got %d results, want 2", len(got))
		}
		if got[0].Id != "gallery" || got[1].Id != "studio" {
			t.Errorf("got order %v, %v; want gallery, studio", got[0].Id, got[1].Id)
		}
	})

	t.Run("MembersRankEmptyQuery", func(t *testing.T) {
		got := r.ListPublic()
		if len(got) == 0 || got[0].Id != "arena" {
			t.Fatalf("populated room should rank first, got %v", got)
		}
	})

	t.Run("MinUsersFilter", func(t *testing.T) {
		got := r.Search("", api.SearchFilters{MinUsers: 2})
		if len(got) != 1 || got[0].Id != "arena" {
			t.Errorf("got %v, want only arena", got)
		}
	})

	t.Run("CapabilityFilter", func(t *testing.T) {
		got := r.Search("", api.SearchFilters{Capabilities: []string{"video"}})
		if len(got) != 1 || got[0].Id != "arena" {
			t.Errorf("got %v, want only arena", got)
		}
	})

	t.Run("RecencyDecay", func(t *testing.T) {
		r2 := testRegistry(clk)
		if _, err := r2.Create(RoomSpec{Id: "old", Name: "Old"}); err != nil {
			t.Fatal(err)
		}
		clk.Advance(100 * time.Hour)
		if _, err := r2.Create(RoomSpec{Id: "fresh", Name: "Fresh"}); err != nil {
			t.Fatal(err)
		}
		got := r2.ListPublic()
		if len(got) != 2 || got[0].Id != "fresh" {
			t.Errorf("recently active room should rank first, got %v", got)
		}
	})

	t.Run("StaleTies", func(t *testing.T) {
		// both rooms idle past the recency window score zero, creation
		// order breaks the tie
		r2 := testRegistry(clk)
		if _, err := r2.Create(RoomSpec{Id: "a", Name: "A"}); err != nil {
			t.Fatal(err)
		}
		if _, err := r2.Create(RoomSpec{Id: "b", Name: "B"}); err != nil {
			t.Fatal(err)
		}
		clk.Advance(300 * time.Hour)
		got := r2.ListPublic()
		if len(got) != 2 || got[0].Id != "a" || got[1].Id != "b" {
			t.Errorf("got %v, want creation order a, b", got)
		}
	})
}
