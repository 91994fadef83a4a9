package registry

import (
	"sort"
	"strings"

	"github.com/holomesh/holomesh/pkg/api"
)

// relevance score weights
const (
	nameMatchScore = 10
	descMatchScore = 5
	memberWeight   = 2
	recencyScore   = 10
)

// ListPublic returns the non-private rooms ranked by relevance.
func (r *Registry) ListPublic() []api.RoomInfo {
	return r.Search("", api.SearchFilters{})
}

// Search ranks the non-private rooms matching the query and filters by
// a relevance score: text match in the name or description, current
// member count and a recency bonus decaying linearly to zero over the
// configured window. Ties keep room creation order (stable sort).
func (r *Registry) Search(query string, filters api.SearchFilters) []api.RoomInfo {
	q := strings.ToLower(strings.TrimSpace(query))

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	type scored struct {
		info  api.RoomInfo
		score float64
	}
	var found []scored
	for _, id := range r.order {
		room, ok := r.rooms[id]
		if !ok || room.Private {
			continue
		}
		if !r.matches(room, q, filters) {
			continue
		}
		score := float64(memberWeight * len(room.participants))
		if q != "" {
			if strings.Contains(strings.ToLower(room.Name), q) {
				score += nameMatchScore
			}
			if strings.Contains(strings.ToLower(room.Description), q) {
				score += descMatchScore
			}
		}
		if age := now.Sub(room.LastActivity); age < r.conf.RecencyWindow {
			score += recencyScore * (1 - float64(age)/float64(r.conf.RecencyWindow))
		}
		found = append(found, scored{info: room.info(), score: score})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].score > found[j].score })

	out := make([]api.RoomInfo, len(found))
	for i, s := range found {
		out[i] = s.info
	}
	return out
}

func (r *Registry) matches(room *Room, q string, f api.SearchFilters) bool {
	if q != "" &&
		!strings.Contains(strings.ToLower(room.Name), q) &&
		!strings.Contains(strings.ToLower(room.Description), q) {
		return false
	}
	for _, c := range f.Capabilities {
		if !room.Settings.HasCapability(c) {
			return false
		}
	}
	if f.MinUsers > 0 && len(room.participants) < f.MinUsers {
		return false
	}
	if f.Template != "" && room.Template != f.Template {
		return false
	}
	return true
}
