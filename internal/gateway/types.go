package gateway

import (
	"context"
	"errors"
)

// Sentinel errors returned by gateway implementations.
// Callers branch with errors.Is; both are treated as skip-and-continue
// by the maintenance passes.
var (
	ErrNotFound  = errors.New("gateway: not found")
	ErrForbidden = errors.New("gateway: forbidden")
)

// Channel is a resolved delivery target.
type Channel struct {
	ID       int64
	ServerID int64
	Name     string
}

// Embed is the rendered rich-message artifact delivered to channels.
type Embed struct {
	Title       string
	URL         string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Membership is a point-in-time view of one community as seen by the bot.
// Present is false when the bot is no longer in the community; Members is
// only meaningful when Present is true.
type Membership struct {
	Present bool
	Members map[int64]struct{}
}

func (m Membership) Has(userID int64) bool {
	if !m.Present {
		return false
	}
	_, ok := m.Members[userID]
	return ok
}

// Client is the messaging-gateway capability handed to each component at
// construction. Nothing in this repo reaches a process-wide client.
type Client interface {
	// ResolveChannel looks up a delivery target.
	// Returns ErrNotFound when the channel no longer exists or is not a
	// text channel.
	ResolveChannel(ctx context.Context, channelID int64) (Channel, error)

	// SendEmbed delivers the artifact to one channel.
	// Returns ErrForbidden when the bot lacks permission.
	SendEmbed(ctx context.Context, channelID int64, e Embed) error

	// GuildMembership reports whether the bot is still in the community
	// and, if so, the set of member user IDs.
	GuildMembership(ctx context.Context, serverID int64) (Membership, error)

	// MemberRoles returns the role IDs currently assigned to a member.
	MemberRoles(ctx context.Context, serverID, userID int64) ([]int64, error)

	AddMemberRole(ctx context.Context, serverID, userID, roleID int64) error
	RemoveMemberRole(ctx context.Context, serverID, userID, roleID int64) error
}
