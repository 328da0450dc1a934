package dto

const ReferenceReturn = "return"

type DeductInput struct {
	UserID        string
	Points        int
	Reason        string
	ReferenceType string
	ReferenceID   string
}

type BalanceResponse struct {
	UserID string `json:"userId"`
	Points int    `json:"points"`
}
