package commands

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	logx "practicebot/pkg/logx"
)

// UsageRecorder counts command invocations into today's analytics.
type UsageRecorder interface {
	MarkCommandUse(ctx context.Context, userID int64) error
}

// ServerEnsurer creates the server record on first interaction.
type ServerEnsurer interface {
	EnsureServer(ctx context.Context, id int64, now time.Time) error
}

// Handler handles one slash-command interaction.
type Handler func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error

// Middleware wraps a Handler with a cross-cutting concern. Concerns are an
// explicit chain applied per handler, not implicit annotations.
type Middleware func(Handler) Handler

// Chain applies middlewares so that the first listed runs outermost.
func Chain(h Handler, mw ...Middleware) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// WithDeferral acknowledges the interaction immediately so the handler can
// take its time and reply via followup.
func WithDeferral() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
			if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			}); err != nil {
				return err
			}
			return next(ctx, s, i)
		}
	}
}

// WithAnalytics counts the invocation into today's global usage counters.
// A failed count never blocks the command itself.
func WithAnalytics(store UsageRecorder, log logx.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
			if userID, ok := interactionUserID(i); ok {
				if err := store.MarkCommandUse(ctx, userID); err != nil {
					log.Warn("analytics count failed", logx.Int64("user", userID), logx.Err(err))
				}
			}
			return next(ctx, s, i)
		}
	}
}

// WithServerDocument makes sure the invoking community has a server record
// before the handler runs.
func WithServerDocument(store ServerEnsurer, log logx.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
			if serverID, err := strconv.ParseInt(i.GuildID, 10, 64); err == nil {
				if err := store.EnsureServer(ctx, serverID, timeNow()); err != nil {
					log.Warn("server record ensure failed", logx.Int64("server", serverID), logx.Err(err))
				}
			}
			return next(ctx, s, i)
		}
	}
}

func interactionUserID(i *discordgo.InteractionCreate) (int64, bool) {
	var raw string
	switch {
	case i.Member != nil && i.Member.User != nil:
		raw = i.Member.User.ID
	case i.User != nil:
		raw = i.User.ID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}
