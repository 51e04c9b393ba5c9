package relay

// Registry is the full rooms document as pushed by clients. The lobby
// client owns room creation, so the server accepts whole-document
// overwrites and only normalizes what it stores.
type Registry map[string]Room

// Normalize returns a cleaned copy of the pushed registry: room IDs
// stamped from the map key, players capped at maxPlayers, seat indices
// reassigned in list order when duplicated or negative, and a missing
// creation time stamped server-side.
func Normalize(in Registry, maxPlayers int) Registry {
	out := make(Registry, len(in))
	for id, r := range in {
		if id == "" {
			continue
		}
		r.ID = id
		if maxPlayers > 0 && len(r.Players) > maxPlayers {
			r.Players = r.Players[:maxPlayers]
		}
		r.Players = reseat(r.Players)
		if r.Created == 0 {
			r.Created = NowMillis()
		}
		out[id] = r
	}
	return out
}

// reseat keeps the given seat indices when they are already unique and
// non-negative, otherwise reassigns them in join order.
func reseat(players []Player) []Player {
	seen := make(map[int]bool, len(players))
	valid := true
	for _, p := range players {
		if p.Index < 0 || seen[p.Index] {
			valid = false
			break
		}
		seen[p.Index] = true
	}
	out := make([]Player, len(players))
	copy(out, players)
	if valid {
		return out
	}
	for i := range out {
		out[i].Index = i
	}
	return out
}

// PublicView is the lobby projection of a room: everything a browser
// needs to render the list, never the game snapshot.
type PublicView struct {
	ID          string   `json:"id"`
	Host        string   `json:"host"`
	Players     []Player `json:"players"`
	GameStarted bool     `json:"gameStarted"`
	Created     int64    `json:"created"`
}

// Project builds the safe lobby view of a registry.
func Project(in Registry) map[string]PublicView {
	out := make(map[string]PublicView, len(in))
	for id, r := range in {
		players := make([]Player, len(r.Players))
		copy(players, r.Players)
		created := r.Created
		if created == 0 {
			created = NowMillis()
		}
		out[id] = PublicView{
			ID:          r.ID,
			Host:        r.Host,
			Players:     players,
			GameStarted: r.GameStarted,
			Created:     created,
		}
	}
	return out
}
