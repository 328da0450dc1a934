package model

import "math"

const earthRadiusKm = 6371.0

type Branch struct {
	BaseModel
	Name      string   `db:"name" json:"name"`
	NameAr    string   `db:"name_ar" json:"nameAr"`
	Address   string   `db:"address" json:"address"`
	Phone     string   `db:"phone" json:"phone"`
	Latitude  *float64 `db:"latitude" json:"latitude"`
	Longitude *float64 `db:"longitude" json:"longitude"`
	IsActive  bool     `db:"is_active" json:"isActive"`
}

func (b *Branch) HasLocation() bool {
	return b.Latitude != nil && b.Longitude != nil
}

func (b *Branch) DisplayName() string {
	if b.NameAr != "" {
		return b.NameAr
	}
	return b.Name
}

// HaversineKm is the great-circle distance between two WGS84 points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// NearestBranch returns the closest branch with coordinates. The first branch
// wins a tie. ok is false when no branch has coordinates.
func NearestBranch(branches []Branch, lat, lng float64) (nearest *Branch, distanceKm float64, ok bool) {
	for i := range branches {
		b := &branches[i]
		if !b.HasLocation() {
			continue
		}
		d := HaversineKm(lat, lng, *b.Latitude, *b.Longitude)
		if !ok || d < distanceKm {
			nearest, distanceKm, ok = b, d, true
		}
	}
	return nearest, distanceKm, ok
}
