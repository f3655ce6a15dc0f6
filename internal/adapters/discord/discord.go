package discord

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"practicebot/internal/gateway"
	logx "practicebot/pkg/logx"
)

type Config struct {
	Token string
}

var _ gateway.Client = (*Adapter)(nil)

// Adapter implements gateway.Client on top of a discordgo session.
type Adapter struct {
	cfg Config
	log logx.Logger

	session *discordgo.Session

	runMu   sync.Mutex
	running bool
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + strings.TrimSpace(cfg.Token))
	if err != nil {
		return nil, err
	}
	// Membership view needs the privileged members intent.
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	s.StateEnabled = true
	return &Adapter{cfg: cfg, log: log, session: s}, nil
}

// Session exposes the raw session for the command layer (interaction
// handlers register directly on it).
func (a *Adapter) Session() *discordgo.Session { return a.session }

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	if err := a.session.Open(); err != nil {
		return err
	}
	a.running = true
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	err := a.session.Close()
	a.log.Info("gateway disconnected", logx.Err(err))
	return err
}

func (a *Adapter) ResolveChannel(ctx context.Context, channelID int64) (gateway.Channel, error) {
	id := formatID(channelID)
	ch, err := a.session.State.Channel(id)
	if err != nil {
		ch, err = a.session.Channel(id, discordgo.WithContext(ctx))
		if err != nil {
			return gateway.Channel{}, mapErr(err)
		}
	}
	if ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildNews {
		return gateway.Channel{}, gateway.ErrNotFound
	}
	serverID, _ := parseID(ch.GuildID)
	return gateway.Channel{ID: channelID, ServerID: serverID, Name: ch.Name}, nil
}

func (a *Adapter) SendEmbed(ctx context.Context, channelID int64, e gateway.Embed) error {
	_, err := a.session.ChannelMessageSendEmbed(formatID(channelID), MessageEmbed(e), discordgo.WithContext(ctx))
	return mapErr(err)
}

func (a *Adapter) GuildMembership(ctx context.Context, serverID int64) (gateway.Membership, error) {
	id := formatID(serverID)
	if _, err := a.session.State.Guild(id); err != nil {
		// Not in state means the bot is not in the guild (or the cache is
		// cold); confirm against the REST API before declaring absence.
		if _, err := a.session.Guild(id, discordgo.WithContext(ctx)); err != nil {
			if isStatus(err, http.StatusNotFound) || isStatus(err, http.StatusForbidden) {
				return gateway.Membership{Present: false}, nil
			}
			return gateway.Membership{}, err
		}
	}

	members := make(map[int64]struct{})
	after := ""
	for {
		page, err := a.session.GuildMembers(id, after, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return gateway.Membership{}, mapErr(err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			uid, err := parseID(m.User.ID)
			if err != nil {
				continue
			}
			members[uid] = struct{}{}
			after = m.User.ID
		}
		if len(page) < 1000 {
			break
		}
	}
	return gateway.Membership{Present: true, Members: members}, nil
}

func (a *Adapter) MemberRoles(ctx context.Context, serverID, userID int64) ([]int64, error) {
	m, err := a.session.GuildMember(formatID(serverID), formatID(userID), discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}
	roles := make([]int64, 0, len(m.Roles))
	for _, r := range m.Roles {
		if id, err := parseID(r); err == nil {
			roles = append(roles, id)
		}
	}
	return roles, nil
}

func (a *Adapter) AddMemberRole(ctx context.Context, serverID, userID, roleID int64) error {
	return mapErr(a.session.GuildMemberRoleAdd(formatID(serverID), formatID(userID), formatID(roleID), discordgo.WithContext(ctx)))
}

func (a *Adapter) RemoveMemberRole(ctx context.Context, serverID, userID, roleID int64) error {
	return mapErr(a.session.GuildMemberRoleRemove(formatID(serverID), formatID(userID), formatID(roleID), discordgo.WithContext(ctx)))
}

// MessageEmbed converts the gateway artifact into the wire representation.
func MessageEmbed(e gateway.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		URL:         e.URL,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return out
}

// mapErr folds discord REST errors into the gateway sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if isStatus(err, http.StatusNotFound) {
		return gateway.ErrNotFound
	}
	if isStatus(err, http.StatusForbidden) {
		return gateway.ErrForbidden
	}
	return err
}

func isStatus(err error, code int) bool {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode == code
	}
	return false
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func parseID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
