// Package commands is the slash-command surface. Handlers are plain
// functions wrapped by an explicit middleware chain (deferral, analytics,
// server-record bookkeeping).
package commands

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"

	"practicebot/internal/adapters/discord"
	"practicebot/internal/gateway"
	"practicebot/internal/services/questions"
	"practicebot/internal/storage"
	logx "practicebot/pkg/logx"
)

const handlerTimeout = 15 * time.Second

func timeNow() time.Time { return time.Now().UTC() }

type Service struct {
	session   *discordgo.Session
	store     storage.Store
	questions *questions.Service
	log       logx.Logger

	handlers map[string]Handler
}

func New(session *discordgo.Session, store storage.Store, q *questions.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Service{
		session:   session,
		store:     store,
		questions: q,
		log:       log,
	}

	base := []Middleware{
		WithDeferral(),
		WithServerDocument(store, log),
		WithAnalytics(store, log),
	}
	c.handlers = map[string]Handler{
		"question.daily":  Chain(c.dailyQuestion, base...),
		"question.random": Chain(c.randomQuestion, base...),
	}
	return c
}

// Register installs the interaction handler and publishes the application
// commands. Call after the session is open.
func (c *Service) Register(ctx context.Context) error {
	c.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		c.dispatch(s, i)
	})

	cmds := []*discordgo.ApplicationCommand{
		{
			Name:        "question",
			Description: "Practice questions",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "daily",
					Description: "Get the daily question",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "random",
					Description: "Get a random question of your desired difficulty",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "difficulty",
							Description: "easy, medium, hard or random",
						},
					},
				},
			},
		},
	}

	appID := c.session.State.User.ID
	for _, cmd := range cmds {
		if _, err := c.session.ApplicationCommandCreate(appID, "", cmd, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	c.log.Info("commands registered", logx.Int("count", len(cmds)))
	return nil
}

func (c *Service) dispatch(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	name := data.Name
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		name += "." + data.Options[0].Name
	}
	h, ok := c.handlers[name]
	if !ok {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("panic in command handler", logx.String("command", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		if err := h(ctx, s, i); err != nil {
			c.log.Warn("command failed", logx.String("command", name), logx.Err(err))
		}
	}()
}

func (c *Service) dailyQuestion(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	embed, err := c.questions.RenderDailyQuestion(ctx)
	if err != nil {
		return c.followupError(s, i, "Could not fetch the daily question, try again later.")
	}
	return c.followupEmbed(s, i, embed)
}

func (c *Service) randomQuestion(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	difficulty := "random"
	data := i.ApplicationCommandData()
	if len(data.Options) > 0 {
		for _, opt := range data.Options[0].Options {
			if opt.Name == "difficulty" {
				difficulty = opt.StringValue()
			}
		}
	}
	embed, err := c.questions.RenderRandomQuestion(ctx, difficulty)
	if err != nil {
		return c.followupError(s, i, "Could not fetch a question, try again later.")
	}
	return c.followupEmbed(s, i, embed)
}

func (c *Service) followupEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, e gateway.Embed) error {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{discord.MessageEmbed(e)},
	})
	return err
}

func (c *Service) followupError(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) error {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: msg})
	return err
}
