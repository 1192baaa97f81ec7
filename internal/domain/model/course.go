package model

// Course is the catalog's view of a purchasable item. Read-only here.
type Course struct {
	ID        string
	Title     string
	Category  string
	Price     int64 // minor currency unit
	Published bool
}

func (c *Course) IsZero() bool { return c == nil || c.ID == "" }

// IsFree courses are granted through enrollment, never through an order.
func (c *Course) IsFree() bool { return c.Price == 0 }

func (c *Course) IsPurchasable() bool { return c.Published && c.Price > 0 }
