package handler

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"snake-market/internal/service"
	"snake-market/internal/shop"
)

// ShopHandler shows the storefront catalog in chat. Purchases happen in game.
type ShopHandler struct {
	shopService *service.ShopService
}

// NewShopHandler creates a new ShopHandler.
func NewShopHandler(shopService *service.ShopService) *ShopHandler {
	return &ShopHandler{shopService: shopService}
}

// HandleShop handles the /shop command.
func (h *ShopHandler) HandleShop(c tele.Context) error {
	entries := h.shopService.Catalog().Enabled()
	return c.Reply(h.panelText(), shop.BuildCatalogPanel(entries))
}

// HandleShopCallback handles catalog panel buttons.
func (h *ShopHandler) HandleShopCallback(c tele.Context) error {
	data := strings.TrimPrefix(c.Callback().Data, "\f")

	if data == shop.CallbackShopRefresh {
		_ = c.Respond()
		return c.Edit(h.panelText(), shop.BuildCatalogPanel(h.shopService.Catalog().Enabled()))
	}

	if strings.HasPrefix(data, shop.CallbackShopItem) {
		code := strings.TrimPrefix(data, shop.CallbackShopItem)
		entry, ok := h.shopService.Catalog().Lookup(code)
		if !ok {
			return c.Respond(&tele.CallbackResponse{Text: "❌ This item is no longer sold", ShowAlert: true})
		}
		return c.Respond(&tele.CallbackResponse{Text: FormatEntryDetail(entry), ShowAlert: true})
	}

	log.Debug().Str("data", data).Msg("Unknown shop callback")
	return c.Respond()
}

func (h *ShopHandler) panelText() string {
	return FormatShopStatus(h.shopService.Enabled(), h.shopService.CooldownRemaining()) +
		"\n\n" + h.shopService.ListCatalog()
}

// FormatShopStatus renders the market state line shown above the catalog.
func FormatShopStatus(enabled bool, cooldown int64) string {
	switch {
	case !enabled:
		return "🔴 Market is closed"
	case cooldown > 0:
		return fmt.Sprintf("🟡 Market opens in %d seconds", cooldown)
	default:
		return "🟢 Market is open"
	}
}

// FormatEntryDetail renders the alert shown for one catalog button.
func FormatEntryDetail(e shop.Entry) string {
	what := e.Grant.Item
	if e.Grant.IsAmmo() {
		what = fmt.Sprintf("%d × %s", e.Grant.Amount, e.Grant.Ammo)
	}
	return fmt.Sprintf("%s\nPrice: %d points\nGrants: %s\nBuy in game: .shop %s",
		e.DisplayName, e.Price, what, e.Code)
}
