package catalog

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Tier struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Features    []string        `json:"features"`
	Popular     bool            `json:"popular"`
}

type Catalog struct {
	EventName string          `json:"eventName"`
	Currency  string          `json:"currency"`
	TaxRate   decimal.Decimal `json:"taxRate"`
	Tiers     []Tier          `json:"tiers"`

	byID map[string]Tier
}

// yamlDecimal decodes a scalar straight into a decimal.
type yamlDecimal struct {
	decimal.Decimal
	set bool
}

func (d *yamlDecimal) UnmarshalYAML(node *yaml.Node) error {
	v, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Decimal = v
	d.set = true
	return nil
}

type catalogFile struct {
	EventName string      `yaml:"event_name"`
	Currency  string      `yaml:"currency"`
	TaxRate   yamlDecimal `yaml:"tax_rate"`
	Tiers     []struct {
		ID          string      `yaml:"id"`
		Name        string      `yaml:"name"`
		Price       yamlDecimal `yaml:"price"`
		Description string      `yaml:"description"`
		Features    []string    `yaml:"features"`
		Popular     bool        `yaml:"popular"`
	} `yaml:"tiers"`
}

type LineItem struct {
	TicketType string
	Quantity   int
}

// Quote is a priced cart. Tax is rounded to whole naira.
type Quote struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

func Default() *Catalog {
	c := &Catalog{
		EventName: "IBOM Tech Week 2025",
		Currency:  "NGN",
		TaxRate:   decimal.RequireFromString("0.075"),
		Tiers: []Tier{
			{
				ID:          "early-bird",
				Name:        "Early Bird",
				Price:       decimal.NewFromInt(15000),
				Description: "Limited time offer - Save 40%",
				Features:    []string{"Access to all sessions", "Networking events", "Welcome kit", "Digital certificate"},
				Popular:     true,
			},
			{
				ID:          "regular",
				Name:        "Regular",
				Price:       decimal.NewFromInt(25000),
				Description: "Standard conference access",
				Features:    []string{"Access to all sessions", "Networking events", "Welcome kit", "Digital certificate", "Lunch included"},
			},
			{
				ID:          "vip",
				Name:        "VIP",
				Price:       decimal.NewFromInt(50000),
				Description: "Premium experience with exclusive perks",
				Features:    []string{"All Regular benefits", "VIP lounge access", "Meet & greet with speakers", "Premium swag bag", "Priority seating", "Exclusive dinner"},
			},
		},
	}
	c.index()
	return c
}

// Load reads a catalog file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &Catalog{
		EventName: f.EventName,
		Currency:  f.Currency,
		TaxRate:   decimal.RequireFromString("0.075"),
	}
	if c.Currency == "" {
		c.Currency = "NGN"
	}
	if f.TaxRate.set {
		if f.TaxRate.IsNegative() {
			return nil, fmt.Errorf("tax_rate must not be negative")
		}
		c.TaxRate = f.TaxRate.Decimal
	}

	if len(f.Tiers) == 0 {
		return nil, fmt.Errorf("catalog has no ticket tiers")
	}
	for _, t := range f.Tiers {
		if t.ID == "" {
			return nil, fmt.Errorf("catalog tier is missing an id")
		}
		if !t.Price.IsPositive() {
			return nil, fmt.Errorf("tier %q must have a positive price", t.ID)
		}
		c.Tiers = append(c.Tiers, Tier{
			ID:          t.ID,
			Name:        t.Name,
			Price:       t.Price.Decimal,
			Description: t.Description,
			Features:    t.Features,
			Popular:     t.Popular,
		})
	}

	c.index()
	if len(c.byID) != len(c.Tiers) {
		return nil, fmt.Errorf("catalog has duplicate tier ids")
	}
	return c, nil
}

func (c *Catalog) index() {
	c.byID = make(map[string]Tier, len(c.Tiers))
	for _, t := range c.Tiers {
		c.byID[t.ID] = t
	}
}

func (c *Catalog) Tier(id string) (Tier, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Tax applies the catalog rate, rounding half away from zero.
func (c *Catalog) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(c.TaxRate).Round(0)
}

// Quote prices line items. Unknown ticket types are an error.
func (c *Catalog) Quote(items []LineItem) (Quote, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		tier, ok := c.byID[item.TicketType]
		if !ok {
			return Quote{}, fmt.Errorf("unknown ticket type %q", item.TicketType)
		}
		subtotal = subtotal.Add(tier.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	tax := c.Tax(subtotal)
	return Quote{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}, nil
}

func (c *Catalog) TierIDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
