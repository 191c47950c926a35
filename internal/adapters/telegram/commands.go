package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/meshgram/meshgram/internal/core/domain"
	"github.com/meshgram/meshgram/internal/core/ports"
	"github.com/meshgram/meshgram/internal/core/services/aggregate"
	"github.com/meshgram/meshgram/internal/core/services/routing"
)

// TargetReport is one proxy target's connectivity for /status.
type TargetReport struct {
	Name      string
	Connected bool
}

// StatusReport is the live system view rendered by /status.
type StatusReport struct {
	SourceConnected bool
	Targets         []TargetReport
}

// Commands is the bot command surface: /start, /help, /status, /mode and
// /chatid. State-changing commands are gated by the sink's allow list.
type Commands struct {
	sink      *Sink
	router    *routing.Router
	directory ports.NodeDirectory
	engine    *aggregate.Engine
	status    func() StatusReport
}

func NewCommands(sink *Sink, router *routing.Router, directory ports.NodeDirectory, engine *aggregate.Engine, status func() StatusReport) *Commands {
	return &Commands{
		sink:      sink,
		router:    router,
		directory: directory,
		engine:    engine,
		status:    status,
	}
}

// Run polls for updates until the context is cancelled.
func (c *Commands) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := c.sink.Bot().GetUpdatesChan(cfg)
	defer c.sink.Bot().StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			c.handle(update.Message)
		}
	}
}

func (c *Commands) handle(msg *tgbotapi.Message) {
	userID := msg.From.ID
	var reply string

	switch msg.Command() {
	case "start":
		reply = "Mesh radio bridge is up. Send /help for the command list."
	case "help":
		reply = strings.Join([]string{
			"/status — broker and proxy connectivity, directory size, active groups",
			"/mode — show your routing mode; /mode all|group|private|private_group sets it, /mode clear removes the override",
			"/chatid — show this chat's id",
		}, "\n")
	case "chatid":
		reply = fmt.Sprintf("Chat id: <code>%d</code>", msg.Chat.ID)
	case "status":
		if !c.sink.IsUserAllowed(userID) {
			reply = "You are not on the allow list."
			break
		}
		reply = c.renderStatus()
	case "mode":
		if !c.sink.IsUserAllowed(userID) {
			reply = "You are not on the allow list."
			break
		}
		reply = c.handleMode(userID, strings.TrimSpace(msg.CommandArguments()))
	default:
		reply = "Unknown command. Send /help for the command list."
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	out.ParseMode = tgbotapi.ModeHTML
	if _, err := c.sink.Bot().Send(out); err != nil {
		slog.Warn("command reply failed", "command", msg.Command(), "error", err)
	}
}

func (c *Commands) handleMode(userID int64, arg string) string {
	switch arg {
	case "":
		if mode, ok := c.router.GetUserMode(userID); ok {
			return fmt.Sprintf("Your routing mode override: <b>%s</b>", mode)
		}
		return "No routing mode override set; topic-derived mode applies."
	case "clear":
		c.router.ClearUserMode(userID)
		return "Routing mode override cleared."
	case string(domain.ModeAll), string(domain.ModeGroup), string(domain.ModePrivate), string(domain.ModePrivateGroup):
		c.router.SetUserMode(userID, domain.RoutingMode(arg))
		return fmt.Sprintf("Routing mode override set to <b>%s</b>.", arg)
	default:
		return "Usage: /mode [all|group|private|private_group|clear]"
	}
}

func (c *Commands) renderStatus() string {
	var b strings.Builder
	report := c.status()

	if report.SourceConnected {
		b.WriteString("📡 Source broker: <b>connected</b>\n")
	} else {
		b.WriteString("📡 Source broker: <b>disconnected</b>\n")
	}

	if len(report.Targets) == 0 {
		b.WriteString("🔁 Proxy targets: none configured\n")
	} else {
		b.WriteString("🔁 Proxy targets:\n")
		for _, t := range report.Targets {
			state := "disconnected"
			if t.Connected {
				state = "connected"
			}
			fmt.Fprintf(&b, "  • %s: %s\n", t.Name, state)
		}
	}

	fmt.Fprintf(&b, "🗂 Known nodes: %d\n", c.directory.Len())
	fmt.Fprintf(&b, "📥 Active reception groups: %d", c.engine.Len())
	return b.String()
}
