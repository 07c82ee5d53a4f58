package host

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Hint is a notification recorded by Memory.
type Hint struct {
	PlayerID string
	Text     string
	Duration time.Duration
}

// Grant is a delivery recorded by Memory.
type Grant struct {
	PlayerID string
	Kind     string
	Amount   int
	Ammo     bool
}

type memoryDisplay struct {
	pos     Vec3
	text    string
	textErr error
	posErr  error
}

// Memory is an in-process host used for dry runs and tests. It implements
// World, DisplayScanner, Granter, Permissions and Notifier.
type Memory struct {
	mu          sync.Mutex
	players     map[string]Player
	perms       map[string]map[string]bool
	displays    map[DisplayID]*memoryDisplay
	displaysErr error
	grantErr    error
	hints       []Hint
	grants      []Grant
	scans       int
}

// NewMemory creates an empty in-memory host.
func NewMemory() *Memory {
	return &Memory{
		players:  make(map[string]Player),
		perms:    make(map[string]map[string]bool),
		displays: make(map[DisplayID]*memoryDisplay),
	}
}

// PutPlayer adds or replaces a player.
func (m *Memory) PutPlayer(p Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[p.ID] = p
}

// RemovePlayer drops a player from the world.
func (m *Memory) RemovePlayer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, id)
}

// GrantPermission gives a player a permission.
func (m *Memory) GrantPermission(playerID, permission string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.perms[playerID] == nil {
		m.perms[playerID] = make(map[string]bool)
	}
	m.perms[playerID][permission] = true
}

// PutDisplay adds or replaces a display with its position and score text.
func (m *Memory) PutDisplay(id DisplayID, pos Vec3, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displays[id] = &memoryDisplay{pos: pos, text: text}
}

// SetScoreText updates the text shown by an existing display.
func (m *Memory) SetScoreText(id DisplayID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.displays[id]; ok {
		d.text = text
	}
}

// BreakDisplay makes position or text reads for a display fail.
func (m *Memory) BreakDisplay(id DisplayID, posErr, textErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.displays[id]; ok {
		d.posErr = posErr
		d.textErr = textErr
	}
}

// RemoveDisplay drops a display.
func (m *Memory) RemoveDisplay(id DisplayID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.displays, id)
}

// FailDisplays makes the primary enumeration return err (nil restores it).
func (m *Memory) FailDisplays(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displaysErr = err
}

// FailGrants makes every grant return err (nil restores it).
func (m *Memory) FailGrants(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grantErr = err
}

// Hints returns the notifications sent so far.
func (m *Memory) Hints() []Hint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Hint(nil), m.hints...)
}

// Grants returns the successful deliveries so far.
func (m *Memory) Grants() []Grant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Grant(nil), m.grants...)
}

// Scans returns how often the fallback enumeration ran.
func (m *Memory) Scans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}

// Players implements World.
func (m *Memory) Players(_ context.Context) ([]Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Displays implements World.
func (m *Memory) Displays(_ context.Context) ([]DisplayID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.displaysErr != nil {
		return nil, m.displaysErr
	}
	return m.displayIDs(), nil
}

// ScanDisplays implements DisplayScanner.
func (m *Memory) ScanDisplays(_ context.Context) ([]DisplayID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans++
	return m.displayIDs(), nil
}

func (m *Memory) displayIDs() []DisplayID {
	ids := make([]DisplayID, 0, len(m.displays))
	for id := range m.displays {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DisplayPosition implements World.
func (m *Memory) DisplayPosition(_ context.Context, id DisplayID) (Vec3, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.displays[id]
	if !ok {
		return Vec3{}, ErrNoDisplay
	}
	if d.posErr != nil {
		return Vec3{}, d.posErr
	}
	return d.pos, nil
}

// ScoreText implements World.
func (m *Memory) ScoreText(_ context.Context, id DisplayID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.displays[id]
	if !ok {
		return "", ErrNoDisplay
	}
	if d.textErr != nil {
		return "", d.textErr
	}
	return d.text, nil
}

// GrantItem implements Granter.
func (m *Memory) GrantItem(_ context.Context, playerID, kind string) error {
	return m.grant(Grant{PlayerID: playerID, Kind: kind, Amount: 1})
}

// GrantAmmo implements Granter.
func (m *Memory) GrantAmmo(_ context.Context, playerID, kind string, amount int) error {
	return m.grant(Grant{PlayerID: playerID, Kind: kind, Amount: amount, Ammo: true})
}

func (m *Memory) grant(g Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grantErr != nil {
		return m.grantErr
	}
	if _, ok := m.players[g.PlayerID]; !ok {
		return ErrPlayerNotFound
	}
	m.grants = append(m.grants, g)
	return nil
}

// HasPermission implements Permissions.
func (m *Memory) HasPermission(_ context.Context, playerID, permission string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perms[playerID][permission], nil
}

// Notify implements Notifier.
func (m *Memory) Notify(_ context.Context, playerID, text string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hints = append(m.hints, Hint{PlayerID: playerID, Text: text, Duration: d})
	return nil
}
