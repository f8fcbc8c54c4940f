package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// String backed enums for DB interoperability.

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierMaster  Tier = "master"
)

// ParseTier validates a tier name from config or the subscription backend.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierFree, TierPremium, TierMaster:
		return t, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// TurnLimit is the lifetime turn cap per game. Distinct from the daily
// AI-call quota: this one never resets.
func TurnLimit(t Tier) int {
	if t == TierFree {
		return 50
	}
	return 10000
}

type MemoryCategory string

const (
	MemoryEvent     MemoryCategory = "event"
	MemoryChoice    MemoryCategory = "choice"
	MemoryCharacter MemoryCategory = "character"
	MemoryWorld     MemoryCategory = "world"
)

// MemoryCap bounds GameState.Memories; oldest entries fall off.
const MemoryCap = 20

type Stat string

const (
	StatStrength Stat = "strength"
	StatAgility  Stat = "agility"
	StatWits     Stat = "wits"
	StatEmpathy  Stat = "empathy"
	StatResolve  Stat = "resolve"
)

var AllStats = []Stat{StatStrength, StatAgility, StatWits, StatEmpathy, StatResolve}

const (
	statMin = 0
	statMax = 10
)

// ClampStat restricts attribute values to 0-10.
func ClampStat(v int) int {
	if v < statMin {
		return statMin
	}
	if v > statMax {
		return statMax
	}
	return v
}

// Item is an inventory entry; quantities merge by ID.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

type Character struct {
	Name          string         `json:"name"`
	Backstory     string         `json:"backstory"` // empty until generation completes
	Stats         map[Stat]int   `json:"stats"`
	Inventory     []Item         `json:"inventory"`
	Relationships map[string]int `json:"relationships"` // npc name -> disposition
	Skills        []string       `json:"skills"`
}

// NewCharacter returns a character with baseline attributes.
func NewCharacter(name string) Character {
	stats := make(map[Stat]int, len(AllStats))
	for _, s := range AllStats {
		stats[s] = 5
	}
	return Character{
		Name:          name,
		Stats:         stats,
		Relationships: map[string]int{},
	}
}

// AdjustStat applies a delta and clamps.
func (c *Character) AdjustStat(s Stat, delta int) {
	if c.Stats == nil {
		c.Stats = map[Stat]int{}
	}
	c.Stats[s] = ClampStat(c.Stats[s] + delta)
}

// AddItem merges quantity into an existing entry by ID or appends.
func (c *Character) AddItem(item Item) {
	if item.Qty <= 0 {
		item.Qty = 1
	}
	for i := range c.Inventory {
		if c.Inventory[i].ID == item.ID {
			c.Inventory[i].Qty += item.Qty
			return
		}
	}
	c.Inventory = append(c.Inventory, item)
}

// WorldSystems tracks coarse world pressure dials the narrative reacts to.
type WorldSystems struct {
	Stability int            `json:"stability"` // 0-10
	Scarcity  int            `json:"scarcity"`  // 0-10
	Factions  map[string]int `json:"factions"`  // faction -> standing
}

func DefaultWorldSystems() WorldSystems {
	return WorldSystems{Stability: 5, Scarcity: 5, Factions: map[string]int{}}
}

// Choice is one selectable action under a segment.
type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Segment is one rendered block of narrative plus its choices. Immutable
// once created; superseded segments move into PastSegments.
type Segment struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Choices       []Choice `json:"choices"` // three or more
	CustomAllowed bool     `json:"customAllowed"`
}

// SegmentID derives a stable id from the turn the segment opens.
func SegmentID(turn int) string { return fmt.Sprintf("segment-%d", turn) }

type Memory struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    MemoryCategory `json:"category"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// GameState is the durable aggregate root, owned by the Session. The sync
// layer only ever holds a cache of it.
type GameState struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"ownerId"`
	Era            string       `json:"era"`
	Theme          string       `json:"theme"`
	Difficulty     float64      `json:"difficulty"` // 0..1 realism dial
	Character      Character    `json:"character"`
	World          WorldSystems `json:"world"`
	CurrentSegment *Segment     `json:"currentSegment,omitempty"`
	PastSegments   []Segment    `json:"pastSegments"`
	TurnCount      int          `json:"turnCount"`
	Memories       []Memory     `json:"memories"` // most-recent-first, capped
	Lore           []string     `json:"lore"`     // append-only
	GameOver       bool         `json:"gameOver"`
	LastSaved      time.Time    `json:"lastSaved"`
}

// clone deep-copies the aggregate via JSON. Background work gets clones,
// never the live state.
func (g *GameState) clone() *GameState {
	data, err := json.Marshal(g)
	if err != nil {
		copied := *g
		return &copied
	}
	var out GameState
	if err := json.Unmarshal(data, &out); err != nil {
		copied := *g
		return &copied
	}
	return &out
}

// AddMemory prepends and evicts past the cap.
func (g *GameState) AddMemory(m Memory) {
	g.Memories = append([]Memory{m}, g.Memories...)
	if len(g.Memories) > MemoryCap {
		g.Memories = g.Memories[:MemoryCap]
	}
}

// AddLore appends a lore entry. Lore is never evicted.
func (g *GameState) AddLore(entry string) {
	if entry == "" {
		return
	}
	g.Lore = append(g.Lore, entry)
}

// RecentMemories returns up to n most recent memories.
func (g *GameState) RecentMemories(n int) []Memory {
	if n > len(g.Memories) {
		n = len(g.Memories)
	}
	return g.Memories[:n]
}
