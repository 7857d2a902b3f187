package catalog

import (
	"fmt"
	"regexp"
	"strconv"

	"pokemon-arena/internal/battle"
	"pokemon-arena/internal/model"
)

// NamedResource is the API's {name, url} reference.
type NamedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Sprites holds the image URLs used for display.
type Sprites struct {
	FrontDefault string `json:"front_default"`
	Other        struct {
		OfficialArtwork struct {
			FrontDefault string `json:"front_default"`
		} `json:"official-artwork"`
	} `json:"other"`
}

// Pokemon is the subset of the API's Pokémon resource the arena uses.
type Pokemon struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Types []struct {
		Slot int           `json:"slot"`
		Type NamedResource `json:"type"`
	} `json:"types"`
	Abilities []struct {
		Ability  NamedResource `json:"ability"`
		IsHidden bool          `json:"is_hidden"`
	} `json:"abilities"`
	Stats []struct {
		BaseStat int           `json:"base_stat"`
		Stat     NamedResource `json:"stat"`
	} `json:"stats"`
	Sprites *Sprites `json:"sprites"`
}

// TypeNames returns the Pokémon's type names.
func (p *Pokemon) TypeNames() []string {
	names := make([]string, 0, len(p.Types))
	for _, t := range p.Types {
		names = append(names, t.Type.Name)
	}
	return names
}

// AbilityNames returns the Pokémon's ability names.
func (p *Pokemon) AbilityNames() []string {
	names := make([]string, 0, len(p.Abilities))
	for _, a := range p.Abilities {
		names = append(names, a.Ability.Name)
	}
	return names
}

// Image prefers the official artwork and falls back to the front sprite.
func (p *Pokemon) Image() string {
	if p.Sprites != nil {
		if art := p.Sprites.Other.OfficialArtwork.FrontDefault; art != "" {
			return art
		}
		if p.Sprites.FrontDefault != "" {
			return p.Sprites.FrontDefault
		}
	}
	return SpriteURL(p.ID)
}

// Combatant converts the Pokémon into a battle combatant.
func (p *Pokemon) Combatant() *battle.Combatant {
	stats := make(map[string]int, len(p.Stats))
	for _, s := range p.Stats {
		stats[s.Stat.Name] = s.BaseStat
	}
	return &battle.Combatant{
		ID:    strconv.Itoa(p.ID),
		Name:  p.Name,
		Image: p.Image(),
		Types: p.TypeNames(),
		Stats: stats,
	}
}

// Favorite builds the cached display fields stored with a favorite.
func (p *Pokemon) Favorite() model.Favorite {
	return model.Favorite{
		ID:        model.ID(strconv.Itoa(p.ID)),
		Name:      p.Name,
		Image:     p.Image(),
		Types:     p.TypeNames(),
		Abilities: p.AbilityNames(),
	}
}

// Ref is a list entry: a name plus the id parsed from its URL.
type Ref struct {
	ID    int      `json:"id"`
	Name  string   `json:"name"`
	URL   string   `json:"url"`
	Types []string `json:"types,omitempty"`
}

// Page is one slice of a listing.
type Page struct {
	Results []Ref `json:"results"`
	Total   int   `json:"total"`
}

// Summary is a search result with details filled in when available.
type Summary struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Image     string   `json:"image"`
	Types     []string `json:"types"`
	Abilities []string `json:"abilities"`
	Hydrated  bool     `json:"hydrated"`
}

// Summary returns the entry's summary without fetching details.
func (r Ref) Summary() Summary {
	types := r.Types
	if types == nil {
		types = []string{}
	}
	return Summary{
		ID:        r.ID,
		Name:      r.Name,
		Image:     SpriteURL(r.ID),
		Types:     types,
		Abilities: []string{},
	}
}

// Summaries converts refs without fetching details.
func Summaries(refs []Ref) []Summary {
	out := make([]Summary, len(refs))
	for i, r := range refs {
		out[i] = r.Summary()
	}
	return out
}

var idFromURLPattern = regexp.MustCompile(`/pokemon/(\d+)/?$`)

// IDFromURL extracts the numeric id from a Pokémon resource URL.
func IDFromURL(url string) int {
	m := idFromURLPattern.FindStringSubmatch(url)
	if m == nil {
		return 0
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return id
}

// SpriteURL returns the small default sprite for an id.
func SpriteURL(id int) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/PokeAPI/sprites/master/sprites/pokemon/%d.png", id)
}
