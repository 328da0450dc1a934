package dto

import "github.com/allosh/allosh-market-service/internal/model"

type NearestBranch struct {
	Branch     model.Branch `json:"branch"`
	DistanceKm float64      `json:"distanceKm"`
}

type CreateBranchInput struct {
	Name      string   `json:"name" validate:"required,max=200"`
	NameAr    string   `json:"nameAr" validate:"max=200"`
	Address   string   `json:"address" validate:"max=500"`
	Phone     string   `json:"phone" validate:"max=30"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type UpdateBranchInput struct {
	ID        string   `json:"-" validate:"required"`
	Name      string   `json:"name" validate:"required,max=200"`
	NameAr    string   `json:"nameAr" validate:"max=200"`
	Address   string   `json:"address" validate:"max=500"`
	Phone     string   `json:"phone" validate:"max=30"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	IsActive  bool     `json:"isActive"`
}
