// Package achievements computes the user's badges from their recycling
// activity and keeps that activity in the local store.
package achievements

// PointsPerLevel is the number of points between two levels.
const PointsPerLevel = 300

// Rarity grades an achievement.
type Rarity string

const (
	Common    Rarity = "common"
	Rare      Rarity = "rare"
	Epic      Rarity = "epic"
	Legendary Rarity = "legendary"
)

// Achievement is one catalog entry evaluated against a user's stats.
type Achievement struct {
	ID          string
	Name        string
	Description string
	Rarity      Rarity
	Points      int
	Earned      bool
	Progress    int
	MaxProgress int
}

type rule struct {
	Achievement
	progress func(Stats) int
}

var catalog = []rule{
	{Achievement{ID: "first_box", Name: "Primer Paso", Description: "Crea tu primera caja de reciclaje", Rarity: Common, Points: 50, MaxProgress: 1},
		func(s Stats) int { return s.BoxesCreated }},
	{Achievement{ID: "eco_warrior", Name: "Guerrero Ecológico", Description: "Recicla 100 envases", Rarity: Rare, Points: 200, MaxProgress: 100},
		func(s Stats) int { return s.ContainersRecycled }},
	{Achievement{ID: "streak_master", Name: "Maestro de la Constancia", Description: "Mantén una racha de 7 días", Rarity: Epic, Points: 300, MaxProgress: 7},
		func(s Stats) int { return s.Streak }},
	{Achievement{ID: "community_hero", Name: "Héroe de la Comunidad", Description: "Crea 10 cajas de reciclaje", Rarity: Epic, Points: 500, MaxProgress: 10},
		func(s Stats) int { return s.BoxesCreated }},
	{Achievement{ID: "recycling_legend", Name: "Leyenda del Reciclaje", Description: "Recicla 500 envases", Rarity: Legendary, Points: 1000, MaxProgress: 500},
		func(s Stats) int { return s.ContainersRecycled }},
	{Achievement{ID: "level_master", Name: "Maestro de Niveles", Description: "Alcanza el nivel 10", Rarity: Legendary, Points: 750, MaxProgress: 10},
		func(s Stats) int { return s.Level }},
}

// Evaluate returns every catalog entry with its earned flag and progress.
func Evaluate(s Stats) []Achievement {
	out := make([]Achievement, 0, len(catalog))
	for _, r := range catalog {
		a := r.Achievement
		a.Progress = min(r.progress(s), a.MaxProgress)
		a.Earned = r.progress(s) >= a.MaxProgress
		out = append(out, a)
	}
	return out
}

// Newly returns the achievements earned under next but not under prev.
func Newly(prev, next Stats) []Achievement {
	before := Evaluate(prev)
	var out []Achievement
	for i, a := range Evaluate(next) {
		if a.Earned && !before[i].Earned {
			out = append(out, a)
		}
	}
	return out
}

// LevelFor returns the level reached with points. Level 1 starts at zero.
func LevelFor(points int) int {
	if points < 0 {
		return 1
	}
	return points/PointsPerLevel + 1
}

// Impact estimates the environmental effect of the recorded activity.
type Impact struct {
	TreesEquivalent int
	WaterLiters     int
	EnergyKWh       int
}

// ImpactOf derives Impact from s.
func ImpactOf(s Stats) Impact {
	return Impact{
		TreesEquivalent: round(s.CO2Saved / 2.3),
		WaterLiters:     round(float64(s.ContainersRecycled) * 0.15),
		EnergyKWh:       round(float64(s.ContainersRecycled) * 0.08),
	}
}

func round(v float64) int { return int(v + 0.5) }
