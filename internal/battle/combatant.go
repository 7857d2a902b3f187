// Package battle decides fights between two Pokémon.
package battle

// Stat names as reported by the Pokémon API.
const (
	StatHP             = "hp"
	StatAttack         = "attack"
	StatDefense        = "defense"
	StatSpecialAttack  = "special-attack"
	StatSpecialDefense = "special-defense"
	StatSpeed          = "speed"
)

// StatNames lists the six compared stats in display order.
var StatNames = []string{
	StatHP,
	StatAttack,
	StatDefense,
	StatSpecialAttack,
	StatSpecialDefense,
	StatSpeed,
}

// Combatant is a Pokémon with the stats needed to fight.
type Combatant struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Image string         `json:"image"`
	Types []string       `json:"types"`
	Stats map[string]int `json:"stats"`
}

// Stat returns the named base stat, or 0 when unknown.
func (c *Combatant) Stat(name string) int {
	return c.Stats[name]
}

// Total sums the six compared stats.
func (c *Combatant) Total() int {
	total := 0
	for _, name := range StatNames {
		total += c.Stat(name)
	}
	return total
}
