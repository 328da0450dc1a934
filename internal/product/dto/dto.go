package dto

type ProductFilters struct {
	Category    string `json:"category,omitempty"`
	IsActive    *bool  `json:"isActive,omitempty"`
	SearchQuery string `json:"q,omitempty"` // name, name_ar or sku
	SortBy      string `json:"sortBy,omitempty"`
	SortOrder   string `json:"sortOrder,omitempty"`
	Page        int    `json:"page"`
	PageSize    int    `json:"pageSize"`
}

type CreateProductInput struct {
	SKU       string  `json:"sku" validate:"required,max=64"`
	Name      string  `json:"name" validate:"required,max=200"`
	NameAr    string  `json:"nameAr" validate:"max=200"`
	Category  string  `json:"category" validate:"max=100"`
	BasePrice float64 `json:"basePrice" validate:"gte=0"`
	ImageURL  string  `json:"imageUrl" validate:"omitempty,url"`
}

type UpdateProductInput struct {
	ID        string  `json:"-" validate:"required"`
	SKU       string  `json:"sku" validate:"required,max=64"`
	Name      string  `json:"name" validate:"required,max=200"`
	NameAr    string  `json:"nameAr" validate:"max=200"`
	Category  string  `json:"category" validate:"max=100"`
	BasePrice float64 `json:"basePrice" validate:"gte=0"`
	ImageURL  string  `json:"imageUrl" validate:"omitempty,url"`
	IsActive  bool    `json:"isActive"`
}
