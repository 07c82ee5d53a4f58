package shop

import (
	"fmt"

	tele "gopkg.in/telebot.v3"
)

// Callback data prefixes
const (
	CallbackShopItem    = "shop_item:"   // shop_item:medkit
	CallbackShopRefresh = "shop_refresh" // shop_refresh
)

// BuildCatalogPanel creates an inline keyboard with one button per entry.
func BuildCatalogPanel(entries []Entry) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	var currentRow []tele.Btn
	for i, e := range entries {
		btn := markup.Data(
			fmt.Sprintf("%s (%dp)", e.DisplayName, e.Price),
			CallbackShopItem+e.Code,
		)
		currentRow = append(currentRow, btn)

		// 2 buttons per row
		if len(currentRow) == 2 || i == len(entries)-1 {
			rows = append(rows, markup.Row(currentRow...))
			currentRow = nil
		}
	}

	rows = append(rows, markup.Row(markup.Data("Refresh", CallbackShopRefresh)))

	markup.Inline(rows...)
	return markup
}
