package handler

import (
	"time"

	"github.com/blindbox-shop/order-service/internal/domain/order"
)

// --- requests ---

type createOrderRequest struct {
	StoreID         string             `json:"storeId"`
	Items           []orderItemRequest `json:"items"`
	ShippingAddress *addressDTO        `json:"shippingAddress"`
	BillingAddress  *addressDTO        `json:"billingAddress"`
	PaymentMethod   paymentMethodDTO   `json:"paymentMethod"`
	Notes           string             `json:"notes"`
}

type orderItemRequest struct {
	ProductID string       `json:"productId"`
	VariantID string       `json:"variantId"`
	Quantity  int          `json:"quantity"`
	Blindbox  *blindboxDTO `json:"blindboxItem"`
}

type updateStatusRequest struct {
	Status             string `json:"status"`
	Note               string `json:"note"`
	CancellationReason string `json:"cancellationReason"`
	ReturnReason       string `json:"returnReason"`
}

type addressDTO struct {
	FullName      string `json:"fullName"`
	PhoneNumber   string `json:"phoneNumber"`
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
}

type paymentMethodDTO struct {
	Type    string         `json:"type"`
	Details map[string]any `json:"details,omitempty"`
}

type blindboxDTO struct {
	Name   string `json:"name"`
	Rarity string `json:"rarity"`
	Image  string `json:"image"`
}

// --- responses ---

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type orderResponse struct {
	ID                    string            `json:"id"`
	OrderNumber           string            `json:"orderNumber"`
	User                  buyerDTO          `json:"user"`
	Store                 storeDTO          `json:"store"`
	Items                 []orderItemDTO    `json:"items"`
	ShippingAddress       addressDTO        `json:"shippingAddress"`
	BillingAddress        addressDTO        `json:"billingAddress"`
	PaymentMethod         paymentMethodDTO  `json:"paymentMethod"`
	PaymentStatus         string            `json:"paymentStatus"`
	Status                string            `json:"status"`
	StatusHistory         []statusChangeDTO `json:"statusHistory"`
	Subtotal              float64           `json:"subtotal"`
	ShippingFee           float64           `json:"shippingFee"`
	Discount              float64           `json:"discount"`
	Total                 float64           `json:"total"`
	Notes                 string            `json:"notes,omitempty"`
	CancellationReason    string            `json:"cancellationReason,omitempty"`
	ReturnReason          string            `json:"returnReason,omitempty"`
	EstimatedDeliveryDate *time.Time        `json:"estimatedDeliveryDate,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

type buyerDTO struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type storeDTO struct {
	StoreID string `json:"storeId"`
	Name    string `json:"name"`
}

type orderItemDTO struct {
	Product  itemProductDTO `json:"product"`
	Quantity int            `json:"quantity"`
	Price    float64        `json:"price"`
	Subtotal float64        `json:"subtotal"`
}

type itemProductDTO struct {
	ProductID string       `json:"productId"`
	Name      string       `json:"name"`
	Price     float64      `json:"price"`
	Image     string       `json:"image,omitempty"`
	Variant   *variantDTO  `json:"variant,omitempty"`
	Blindbox  *blindboxDTO `json:"blindboxItem,omitempty"`
}

type variantDTO struct {
	VariantID string `json:"variantId,omitempty"`
	Name      string `json:"name,omitempty"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

type statusChangeDTO struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

type orderEnvelope struct {
	Order orderResponse `json:"order"`
}

type orderListResponse struct {
	Count       int             `json:"count"`
	Total       int             `json:"total"`
	TotalPages  int             `json:"totalPages"`
	CurrentPage int             `json:"currentPage"`
	Orders      []orderResponse `json:"orders"`
}

type statisticsResponse struct {
	TotalOrders  int               `json:"totalOrders"`
	ByStatus     []statusCountDTO  `json:"ordersByStatus"`
	DailyRevenue []dailyRevenueDTO `json:"dailyRevenue"`
}

type statusCountDTO struct {
	Status  string  `json:"status"`
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

type dailyRevenueDTO struct {
	Date    string  `json:"date"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

// --- mapping ---

func toAddress(a *addressDTO) order.Address {
	if a == nil {
		return order.Address{}
	}
	return order.Address(*a)
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemDTO, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemDTO{
			Product: itemProductDTO{
				ProductID: it.Product.ProductID,
				Name:      it.Product.Name,
				Price:     it.Product.Price.InexactFloat64(),
				Image:     it.Product.Image,
				Variant:   (*variantDTO)(it.Product.Variant),
				Blindbox:  (*blindboxDTO)(it.Product.Blindbox),
			},
			Quantity: it.Quantity,
			Price:    it.Price.InexactFloat64(),
			Subtotal: it.Subtotal.InexactFloat64(),
		}
	}

	history := make([]statusChangeDTO, len(o.StatusHistory))
	for i, h := range o.StatusHistory {
		history[i] = statusChangeDTO{
			Status:    string(h.Status),
			Timestamp: h.Timestamp,
			Note:      h.Note,
		}
	}

	return orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		User:            buyerDTO(o.Buyer),
		Store:           storeDTO(o.Store),
		Items:           items,
		ShippingAddress: addressDTO(o.ShippingAddress),
		BillingAddress:  addressDTO(o.BillingAddress),
		PaymentMethod: paymentMethodDTO{
			Type:    string(o.PaymentMethod.Type),
			Details: o.PaymentMethod.Details,
		},
		PaymentStatus:         string(o.PaymentStatus),
		Status:                string(o.Status),
		StatusHistory:         history,
		Subtotal:              o.Subtotal.InexactFloat64(),
		ShippingFee:           o.ShippingFee.InexactFloat64(),
		Discount:              o.Discount.InexactFloat64(),
		Total:                 o.Total.InexactFloat64(),
		Notes:                 o.Notes,
		CancellationReason:    o.CancellationReason,
		ReturnReason:          o.ReturnReason,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
}
