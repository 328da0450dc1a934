package model

type Product struct {
	BaseModel
	SKU       string  `db:"sku" json:"sku"`
	Name      string  `db:"name" json:"name"`
	NameAr    string  `db:"name_ar" json:"nameAr"`
	Category  *string `db:"category" json:"category"`
	BasePrice float64 `db:"base_price" json:"basePrice"`
	ImageURL  *string `db:"image_url" json:"imageUrl"`
	IsActive  bool    `db:"is_active" json:"isActive"`
}

// DisplayName prefers the Arabic name used on the storefront.
func (p *Product) DisplayName() string {
	if p.NameAr != "" {
		return p.NameAr
	}
	return p.Name
}
