package controllers

import (
	"net/http"

	"github.com/caldercommerce/storefront/api/responses"
	"github.com/caldercommerce/storefront/api/validators"
	"github.com/caldercommerce/storefront/internal/checkout"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/logger"
)

// Checkout converts a cart into a pending order. Concurrent attempts on the
// same cart resolve to a single winner; losers receive a conflict.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		cartID, err := validators.UUIDParam(r, "cartID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"cart_id":  cartID.String(),
				"order_id": order.ID.String(),
			})
			logg.Info(ctx, "checkout.converted")
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
