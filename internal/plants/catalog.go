// Package plants is the built-in reference catalog of vegetables, fruit and
// flowers grown on the plot.
package plants

import (
	"sort"
	"strings"

	"plot-go/internal/model"
	"plot-go/internal/plot"
)

// Rotation groups.
const (
	Legumes    = "legumes"
	Brassicas  = "brassicas"
	Roots      = "roots"
	Alliums    = "alliums"
	Cucurbits  = "cucurbits"
	Solanaceae = "solanaceae"
)

// DefaultRotationGroup is used for plants outside the rotation and for beds
// with nothing planted.
const DefaultRotationGroup = Roots

var builtin = []plot.PlantInfo{
	{ID: "peas", Name: "Peas", RotationGroup: Legumes},
	{ID: "broad-beans", Name: "Broad beans", RotationGroup: Legumes},
	{ID: "french-beans", Name: "French beans", RotationGroup: Legumes},
	{ID: "runner-beans", Name: "Runner beans", RotationGroup: Legumes},
	{ID: "cabbage", Name: "Cabbage", RotationGroup: Brassicas},
	{ID: "kale", Name: "Kale", RotationGroup: Brassicas},
	{ID: "broccoli", Name: "Broccoli", RotationGroup: Brassicas},
	{ID: "cauliflower", Name: "Cauliflower", RotationGroup: Brassicas},
	{ID: "brussels-sprouts", Name: "Brussels sprouts", RotationGroup: Brassicas},
	{ID: "pak-choi", Name: "Pak choi", RotationGroup: Brassicas},
	{ID: "carrot", Name: "Carrot", RotationGroup: Roots},
	{ID: "beetroot", Name: "Beetroot", RotationGroup: Roots},
	{ID: "parsnip", Name: "Parsnip", RotationGroup: Roots},
	{ID: "potato", Name: "Potato", RotationGroup: Roots},
	{ID: "turnip", Name: "Turnip", RotationGroup: Roots},
	{ID: "onion", Name: "Onion", RotationGroup: Alliums},
	{ID: "garlic", Name: "Garlic", RotationGroup: Alliums},
	{ID: "leek", Name: "Leek", RotationGroup: Alliums},
	{ID: "spring-onions", Name: "Spring onions", RotationGroup: Alliums},
	{ID: "shallot", Name: "Shallot", RotationGroup: Alliums},
	{ID: "courgette", Name: "Courgette", RotationGroup: Cucurbits},
	{ID: "pumpkin", Name: "Pumpkin", RotationGroup: Cucurbits},
	{ID: "squash", Name: "Squash", RotationGroup: Cucurbits},
	{ID: "cucumber", Name: "Cucumber", RotationGroup: Cucurbits},
	{ID: "melon", Name: "Melon", RotationGroup: Cucurbits},
	{ID: "tomato", Name: "Tomato", RotationGroup: Solanaceae},
	{ID: "pepper", Name: "Pepper", RotationGroup: Solanaceae},
	{ID: "aubergine", Name: "Aubergine", RotationGroup: Solanaceae},
	{ID: "chilli", Name: "Chilli", RotationGroup: Solanaceae},
	{ID: "lettuce", Name: "Lettuce"},
	{ID: "spinach", Name: "Spinach"},
	{ID: "chard", Name: "Chard"},
	{ID: "sweetcorn", Name: "Sweetcorn"},
	{ID: "strawberry", Name: "Strawberry"},
	{ID: "cornflower", Name: "Cornflower"},
	{ID: "cosmos", Name: "Cosmos"},
	{ID: "calendula", Name: "Calendula"},
	{ID: "sweet-pea", Name: "Sweet pea"},
	{ID: "marigold", Name: "Marigold"},
	{ID: "sunflower", Name: "Sunflower"},
	{ID: "zinnia", Name: "Zinnia"},
	{ID: "lupin", Name: "Lupin"},
	{ID: "nasturtium", Name: "Nasturtium"},
}

// aliases maps names as they appear in seed lists and spreadsheets to a
// plant id. Keys are normalized.
var aliases = map[string]string{
	"pea":                             "peas",
	"beans":                           "broad-beans",
	"beans & peas":                    "broad-beans",
	"broad bean 'ratio'":              "broad-beans",
	"french borlotti stokkievitsboon": "french-beans",
	"onions":                          "onion",
	"onion electric":                  "onion",
	"onion senshyu":                   "onion",
	"white senshyn":                   "onion",
	"red electric":                    "onion",
	"onion 'centurion'":               "onion",
	"spring onion 'lilia'":            "spring-onions",
	"spring onion parade":             "spring-onions",
	"onion (spring) keravel pink":     "spring-onions",
	"potatoes":                        "potato",
	"charlotte seed":                  "potato",
	"heidi red seed":                  "potato",
	"organic colleen":                 "potato",
	"organic setanta":                 "potato",
	"garlic 'flavor'":                 "garlic",
	"caulk wight":                     "garlic",
	"leeks":                           "leek",
	"lancelot":                        "leek",
	"leeks seeds tape":                "leek",
	"carrots":                         "carrot",
	"carrot nantes 2":                 "carrot",
	"courgettes":                      "courgette",
	"courguette":                      "courgette",
	"wave climber":                    "courgette",
	"pak choi baby":                   "pak-choi",
	"rainbow chard":                   "chard",
	"strawberries":                    "strawberry",
	"cornflower 'blue diadem'":        "cornflower",
	"cosmos 'sonata mixed'":           "cosmos",
	"spinach 'palco' f1":              "spinach",
	"sweet pea 'old fashioned mixed'": "sweet-pea",
	"red - marigold":                  "marigold",
	"sunflower 'medium red flower'":   "sunflower",
	"zinnia 'dahlia flowered mixed'":  "zinnia",
}

// Catalog is an in-memory plant catalog. The zero value is empty; use New
// for the built-in plants.
type Catalog struct {
	byID   map[string]plot.PlantInfo
	byName map[string]string
}

var _ plot.PlantCatalog = (*Catalog)(nil)

// New returns the built-in catalog.
func New() *Catalog {
	return NewCatalog(builtin, aliases)
}

// NewCatalog builds a catalog from plants and extra aliases. Every plant is
// also reachable by its normalized id and display name.
func NewCatalog(plants []plot.PlantInfo, extra map[string]string) *Catalog {
	c := &Catalog{
		byID:   make(map[string]plot.PlantInfo, len(plants)),
		byName: make(map[string]string, len(plants)*2+len(extra)),
	}
	for _, p := range plants {
		c.byID[p.ID] = p
		c.byName[model.NormalizeName(p.ID)] = p.ID
		c.byName[model.NormalizeName(strings.ReplaceAll(p.ID, "-", " "))] = p.ID
		c.byName[model.NormalizeName(p.Name)] = p.ID
	}
	for name, id := range extra {
		c.byName[model.NormalizeName(name)] = id
	}
	return c
}

// Lookup returns the plant with the given id.
func (c *Catalog) Lookup(plantID string) (plot.PlantInfo, bool) {
	p, ok := c.byID[plantID]
	return p, ok
}

// Resolve maps a free-text plant name to a plant id. A name that does not
// match is retried without any parenthesised suffix, so
// "Potatoes (early)" resolves like "potatoes".
func (c *Catalog) Resolve(name string) (string, bool) {
	n := model.NormalizeName(name)
	if n == "" {
		return "", false
	}
	if id, ok := c.byName[n]; ok {
		return id, true
	}
	if i := strings.Index(n, "("); i > 0 {
		if id, ok := c.byName[strings.TrimSpace(n[:i])]; ok {
			return id, true
		}
	}
	return "", false
}

// RotationGroup returns the rotation group of plantID, or the default group
// for plants outside the rotation and unknown ids.
func (c *Catalog) RotationGroup(plantID string) string {
	if p, ok := c.byID[plantID]; ok && p.RotationGroup != "" {
		return p.RotationGroup
	}
	return DefaultRotationGroup
}

// InferRotationGroup returns the group most of plantIDs belong to. Ties go
// to the group seen first.
func (c *Catalog) InferRotationGroup(plantIDs []string) string {
	counts := map[string]int{}
	var order []string
	for _, id := range plantIDs {
		g := c.RotationGroup(id)
		if counts[g] == 0 {
			order = append(order, g)
		}
		counts[g]++
	}
	best := ""
	for _, g := range order {
		if best == "" || counts[g] > counts[best] {
			best = g
		}
	}
	if best == "" {
		return DefaultRotationGroup
	}
	return best
}

// IDs returns every plant id in the catalog, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
