package model

type Category struct {
	ID        string
	Name      string
	SortOrder int
	Menus     []Menu
}

type Menu struct {
	ID              string
	CategoryID      string
	Name            string
	DurationMinutes int
	Price           int
	// PricePrefix marks prices shown as "from" (e.g. "¥5,000~").
	PricePrefix bool
	SortOrder   int
}

// Selection is the ordered list of menus a customer picked.
type Selection []Menu

func (s Selection) TotalDuration() int {
	total := 0
	for _, m := range s {
		total += m.DurationMinutes
	}
	return total
}

func (s Selection) TotalPrice() int {
	total := 0
	for _, m := range s {
		total += m.Price
	}
	return total
}

func (s Selection) HasPricePrefix() bool {
	for _, m := range s {
		if m.PricePrefix {
			return true
		}
	}
	return false
}

func (s Selection) IDs() []string {
	ids := make([]string, 0, len(s))
	for _, m := range s {
		ids = append(ids, m.ID)
	}
	return ids
}
