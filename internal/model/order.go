package model

import "time"

type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderPreparing      OrderStatus = "preparing"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// Order is owned by the checkout service; this service only reads it.
type Order struct {
	ID            string      `db:"id" json:"id"`
	UserID        string      `db:"user_id" json:"userId"`
	BranchID      string      `db:"branch_id" json:"branchId"`
	BranchName    string      `db:"branch_name" json:"branchName"`
	Status        OrderStatus `db:"status" json:"status"`
	Total         float64     `db:"total" json:"total"`
	CustomerName  string      `db:"customer_name" json:"customerName"`
	CustomerPhone string      `db:"customer_phone" json:"customerPhone"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	Items         []OrderItem `db:"-" json:"items"`
}

type OrderItem struct {
	OrderID   string  `db:"order_id" json:"orderId"`
	ProductID string  `db:"product_id" json:"productId"`
	Name      string  `db:"name" json:"name"`
	UnitPrice float64 `db:"unit_price" json:"unitPrice"`
	Quantity  int     `db:"quantity" json:"quantity"`
}
