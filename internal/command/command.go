// Package command implements the in-game text commands players type into the
// host console.
package command

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"snake-market/internal/config"
	"snake-market/internal/service"
)

// ErrUnknownCommand is returned for names that match no command or alias.
var ErrUnknownCommand = errors.New("unknown command")

// Command names.
const (
	Shop  = "shop"
	Score = "score"
)

// aliases maps every accepted name to its command. "s" belongs to shop.
var aliases = map[string]string{
	Shop:     Shop,
	"s":      Shop,
	"st":     Shop,
	"store":  Shop,
	Score:    Score,
	"sc":     Score,
	"points": Score,
}

// Invoker identifies who ran a command. A nil or empty-id invoker is the
// server console or a remote admin, not a player.
type Invoker struct {
	PlayerID string
	Name     string
}

// Response is the outcome of a command.
type Response struct {
	OK   bool   `json:"ok"`
	Text string `json:"response"`
}

// Info describes a registered command.
type Info struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases"`
	Description string   `json:"description"`
}

// Dispatcher routes commands to the storefront and scoreboard.
type Dispatcher struct {
	shop     *service.ShopService
	ranking  *service.RankingService
	messages func() config.MessagesConfig
}

// NewDispatcher creates a new Dispatcher instance.
func NewDispatcher(shop *service.ShopService, ranking *service.RankingService, messages func() config.MessagesConfig) *Dispatcher {
	return &Dispatcher{shop: shop, ranking: ranking, messages: messages}
}

// Resolve returns the command a name or alias refers to.
func Resolve(name string) (string, bool) {
	cmd, ok := aliases[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, ".")))]
	return cmd, ok
}

// Commands lists the registered commands with their configured descriptions.
func (d *Dispatcher) Commands() []Info {
	msgs := d.messages()
	return []Info{
		{Name: Shop, Aliases: []string{"s", "st", "store"}, Description: msgs.ShopCommandDesc},
		{Name: Score, Aliases: []string{"sc", "points"}, Description: msgs.ScoreCommandDesc},
	}
}

// Execute runs a command. Only the first argument is used.
func (d *Dispatcher) Execute(ctx context.Context, inv *Invoker, name string, args []string) (Response, error) {
	cmd, ok := Resolve(name)
	if !ok {
		return Response{}, ErrUnknownCommand
	}

	msgs := d.messages()
	if inv == nil || inv.PlayerID == "" {
		return Response{OK: false, Text: Clean(msgs.PlayerOnlyCommand)}, nil
	}

	switch cmd {
	case Shop:
		return d.runShop(ctx, inv, args), nil
	default:
		return Response{OK: true, Text: Clean(d.ranking.ScoreBoard(inv.PlayerID))}, nil
	}
}

func (d *Dispatcher) runShop(ctx context.Context, inv *Invoker, args []string) Response {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return Response{OK: true, Text: Clean(d.shop.Overview(inv.PlayerID))}
	}

	code := args[0]
	log.Debug().Str("player", inv.Name).Str("code", code).Msg("Purchase attempt")

	res, err := d.shop.Purchase(ctx, inv.PlayerID, inv.Name, code)
	if err != nil {
		if !isUserError(err) {
			log.Error().Err(err).Str("user_id", inv.PlayerID).Str("code", code).Msg("Purchase failed")
		}
		return Response{OK: false, Text: Clean(res.Message)}
	}
	return Response{OK: true, Text: Clean(res.Message)}
}

// isUserError reports whether err is a rejection the player caused.
func isUserError(err error) bool {
	return errors.Is(err, service.ErrInvalidItem) ||
		errors.Is(err, service.ErrInsufficientPoints) ||
		errors.Is(err, service.ErrMarketCooldown) ||
		errors.Is(err, service.ErrMarketDisabled) ||
		errors.Is(err, service.ErrInventoryFull)
}
