package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
}

type ProductPage struct {
	Products []Product `json:"products"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

// ProductQuery filters the catalogue. Zero values are omitted.
type ProductQuery struct {
	Page     int
	Limit    int
	Category string
	Query    string
}

// CartLine is one product line, shared by the server cart and the guest cart.
type CartLine struct {
	ProductID    uint            `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	ProductImage string          `json:"product_image"`
	Quantity     int             `json:"quantity"`
}

type CartSummary struct {
	TotalItems    int             `json:"total_items"`
	TotalQuantity int             `json:"total_quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

type Cart struct {
	Items   []CartLine  `json:"items"`
	Summary CartSummary `json:"summary"`
}

type SyncItem struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type User struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	PhoneNumber *string `json:"phone_number,omitempty"`
}

type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

type OrderItem struct {
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

type Order struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	Items       []OrderItem     `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
}

type OrderPage struct {
	Orders []Order `json:"orders"`
	Total  int64   `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}

// normalize repairs a cart decoded from a partial or malformed response:
// nil items become empty, unusable lines are dropped and a missing summary
// is recomputed from the lines.
func (c *Cart) normalize() {
	lines := make([]CartLine, 0, len(c.Items))
	for _, l := range c.Items {
		if l.ProductID == 0 || l.Quantity < 1 {
			continue
		}
		lines = append(lines, l)
	}
	c.Items = lines
	if c.Summary.TotalItems == 0 && len(lines) > 0 {
		c.Summary = Summarize(lines)
	}
}

// Summarize totals lines the way the server does.
func Summarize(lines []CartLine) CartSummary {
	s := CartSummary{TotalItems: len(lines), TotalPrice: decimal.Zero}
	for _, l := range lines {
		s.TotalQuantity += l.Quantity
		s.TotalPrice = s.TotalPrice.Add(l.ProductPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return s
}

func (p *ProductPage) normalize() {
	if p.Products == nil {
		p.Products = []Product{}
	}
}

func (o *Order) normalize() {
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
}

func (p *OrderPage) normalize() {
	if p.Orders == nil {
		p.Orders = []Order{}
	}
	for i := range p.Orders {
		p.Orders[i].normalize()
	}
}
