package invoice

import (
	"log/slog"
	"net/http"

	"tripbot/app/echoServer/validation"
	"tripbot/model"
	paymentsvc "tripbot/service/payment"

	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc paymentsvc.Service
	Log *slog.Logger
}

// CreateInvoice creates a Telegram Stars invoice link
// @Summary      Create invoice
// @Description  Looks up the item and returns a Stars invoice link
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        payload  body  model.CreateInvoiceReq  true  "Invoice payload"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]any
// @Failure      500  {object}  map[string]any
// @Router       /createInvoice [post]
func (h *Controller) CreateInvoice(c echo.Context) error {
	var req model.CreateInvoiceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		h.Log.Warn("validation failed", "path", c.Path(), "err", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "itemId and userId are required", "fields": validation.Fields(err)})
	}

	link, err := h.Svc.CreateInvoice(c.Request().Context(), req.ItemID, req.UserID)
	if err != nil {
		switch paymentsvc.Code(err) {
		case paymentsvc.ErrValidation:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
		default:
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			h.Log.Error("create invoice failed",
				"err", err,
				"req_id", rid,
				"item_id", req.ItemID,
			)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create invoice"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"invoiceLink": link})
}

// Catalog lists purchasable items
// @Summary      Item catalog
// @Tags         payments
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /items [get]
func (h *Controller) Catalog(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"data": model.Catalog()})
}
