// Package host defines the collaborators the game host provides: the world
// view the poller observes, and the calls used to grant items, check
// permissions and show hints.
package host

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// Host collaborator errors.
var (
	ErrInventoryFull  = errors.New("inventory full")
	ErrUnknownGrant   = errors.New("unknown item or ammo kind")
	ErrPlayerNotFound = errors.New("player not found")
	ErrNoDisplay      = errors.New("display not found")
)

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the euclidean distance between two positions.
func (v Vec3) Distance(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// DisplayID is an opaque handle for a minigame score display entity.
type DisplayID string

// Player is the host's view of one player at observation time.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Alive     bool   `json:"alive"`
	Connected bool   `json:"connected"`
	Position  Vec3   `json:"position"`
	HeldItem  string `json:"held_item,omitempty"`
}

// World is the observable game state.
type World interface {
	Players(ctx context.Context) ([]Player, error)
	Displays(ctx context.Context) ([]DisplayID, error)
	DisplayPosition(ctx context.Context, id DisplayID) (Vec3, error)
	ScoreText(ctx context.Context, id DisplayID) (string, error)
}

// DisplayScanner is an optional slower enumeration path used when
// World.Displays fails.
type DisplayScanner interface {
	ScanDisplays(ctx context.Context) ([]DisplayID, error)
}

// Granter delivers purchased goods into a player's inventory.
type Granter interface {
	GrantItem(ctx context.Context, playerID, kind string) error
	GrantAmmo(ctx context.Context, playerID, kind string, amount int) error
}

// Permissions answers permission checks for a player.
type Permissions interface {
	HasPermission(ctx context.Context, playerID, permission string) (bool, error)
}

// Notifier shows a short on-screen hint to a player.
type Notifier interface {
	Notify(ctx context.Context, playerID, text string, d time.Duration) error
}

// ItemQualifier reports whether a held item kind marks its holder as playing
// the minigame.
type ItemQualifier func(item string) bool

// SubstringQualifier qualifies any item whose kind contains one of subs.
func SubstringQualifier(subs []string) ItemQualifier {
	return func(item string) bool {
		if item == "" {
			return false
		}
		for _, s := range subs {
			if s != "" && strings.Contains(item, s) {
				return true
			}
		}
		return false
	}
}
