package orders

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/fees"
)

type ItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int    `json:"qty" validate:"required,min=1"`
}

type CreateOrderInput struct {
	CustomerID      string             `json:"customer_id" validate:"required"`
	Items           []ItemInput        `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress string             `json:"delivery_address" validate:"required,max=500"`
	PaymentMethod   fees.PaymentMethod `json:"payment_method" validate:"required,oneof=cod gcash bank"`
	PointsToRedeem  int                `json:"points_to_redeem" validate:"min=0"`
	Notes           string             `json:"notes,omitempty" validate:"max=1000"`
	PromotionCode   string             `json:"promotion_code,omitempty" validate:"omitempty,max=64"`
	IdempotencyKey  string             `json:"-"`
}

func newValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns the first validator failure into a *apperr.ValidationError.
func validationError(err error) error {
	var verrs validatorv10.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("", "%v", err)
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "CreateOrderInput.")
	msg := fe.Tag()
	if fe.Param() != "" {
		msg = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
	}
	return apperr.Validation(field, "failed %q", msg)
}

// mergeItems folds repeated products into one line, keeping first-seen order.
func mergeItems(items []ItemInput) []ItemInput {
	idx := make(map[string]int, len(items))
	out := make([]ItemInput, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Qty += it.Qty
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}
