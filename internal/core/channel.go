package core

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/packet"
)

// Name prefixes of synthetic channels shadowing spectate and match
// lifetimes.
const (
	SpectatorChannelPrefix   = "#spectator_"
	MultiplayerChannelPrefix = "#multiplayer_"
)

// ChannelConfig describes a static channel provisioned at startup.
type ChannelConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Description string `mapstructure:"description" yaml:"description"`
	StaffOnly   bool   `mapstructure:"staff_only" yaml:"staff_only"`
}

// Channel is a named chat group with a membership set of user ids.
type Channel struct {
	Name        string
	Description string
	StaffOnly   bool
	synthetic   bool

	mu      sync.Mutex
	members map[int64]struct{}
}

func newChannel(name, description string, staffOnly, synthetic bool) *Channel {
	return &Channel{
		Name:        name,
		Description: description,
		StaffOnly:   staffOnly,
		synthetic:   synthetic,
		members:     make(map[int64]struct{}),
	}
}

// VisibleTo reports whether a session may see this channel in a
// channel listing. Synthetic channels are never listed.
func (c *Channel) VisibleTo(s *Session) bool {
	if c.synthetic {
		return false
	}
	return !c.StaffOnly || s.Privileges.IsStaff()
}

func (c *Channel) add(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[userID]; ok {
		return false
	}
	c.members[userID] = struct{}{}
	return true
}

func (c *Channel) remove(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[userID]; !ok {
		return false
	}
	delete(c.members, userID)
	return true
}

// Members returns the member user ids.
func (c *Channel) Members() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.members))
	for id := range c.members {
		out = append(out, id)
	}
	return out
}

// MemberCount returns the current membership size.
func (c *Channel) MemberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// Contains reports whether the user is a member.
func (c *Channel) Contains(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.members[userID]
	return ok
}

// ChannelRegistry owns every chat channel. Static channels live for
// the whole process; synthetic per-spectate and per-match channels are
// created on first join and torn down when the last member leaves.
type ChannelRegistry struct {
	log      *zerolog.Logger
	sessions *SessionRegistry

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewChannelRegistry builds a registry resolving members through the
// given session registry.
func NewChannelRegistry(logger *zerolog.Logger, sessions *SessionRegistry) *ChannelRegistry {
	return &ChannelRegistry{
		log:      logger,
		sessions: sessions,
		channels: make(map[string]*Channel),
	}
}

// Provision creates the static channels. Called once at startup.
func (r *ChannelRegistry) Provision(configs []ChannelConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range configs {
		name := cfg.Name
		if !strings.HasPrefix(name, "#") {
			name = "#" + name
		}
		r.channels[strings.ToLower(name)] = newChannel(name, cfg.Description, cfg.StaffOnly, false)
	}
}

// Get returns a channel by name, nil when absent.
func (r *ChannelRegistry) Get(name string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[strings.ToLower(name)]
}

// CreateSynthetic creates (or returns) a synthetic channel.
func (r *ChannelRegistry) CreateSynthetic(name string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(name)
	if c, ok := r.channels[key]; ok {
		return c
	}
	c := newChannel(name, "", false, true)
	r.channels[key] = c
	return c
}

// Join adds the session to the channel and confirms the join to it.
// Staff-only channels reject non-staff members.
func (r *ChannelRegistry) Join(name string, s *Session) error {
	c := r.Get(name)
	if c == nil {
		return ErrChannelNotFound
	}
	if c.StaffOnly && !s.Privileges.IsStaff() {
		return ErrChannelForbidden
	}
	c.add(s.UserID)
	s.Enqueue(packet.ChannelJoinSuccess(c.Name))
	return nil
}

// Leave removes the session from the channel. The last member leaving
// a synthetic channel tears the channel down.
func (r *ChannelRegistry) Leave(name string, s *Session) {
	c := r.Get(name)
	if c == nil {
		return
	}
	if !c.remove(s.UserID) {
		return
	}
	if c.synthetic && c.MemberCount() == 0 {
		r.mu.Lock()
		delete(r.channels, strings.ToLower(c.Name))
		r.mu.Unlock()
	}
}

// LeaveAll removes the session from every channel it is a member of.
func (r *ChannelRegistry) LeaveAll(s *Session) {
	for _, c := range r.snapshot() {
		if c.Contains(s.UserID) {
			r.Leave(c.Name, s)
		}
	}
}

// VisibleTo lists the channels the session may see, sorted by name.
func (r *ChannelRegistry) VisibleTo(s *Session) []*Channel {
	var out []*Channel
	for _, c := range r.snapshot() {
		if c.VisibleTo(s) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SendToChannel fans a message out to every member except the sender.
func (r *ChannelRegistry) SendToChannel(name string, msg packet.Message) error {
	c := r.Get(name)
	if c == nil {
		return ErrChannelNotFound
	}
	frame := packet.ChatMessage(packet.Message{
		Sender:   msg.Sender,
		Text:     msg.Text,
		Target:   c.Name,
		SenderID: msg.SenderID,
	})
	for _, id := range c.Members() {
		if id == int64(msg.SenderID) {
			continue
		}
		if member := r.sessions.GetByID(id); member != nil {
			member.Enqueue(frame)
		}
	}
	return nil
}

func (r *ChannelRegistry) snapshot() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	return out
}
