package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/opbridge/opbridge/internal/config"
	"github.com/opbridge/opbridge/internal/eventbus"
	"github.com/opbridge/opbridge/internal/interaction"
	"github.com/opbridge/opbridge/internal/promptqueue"
	"github.com/opbridge/opbridge/pkg/cerr"
)

// pollRetryDelay is the backoff after a failed getUpdates call.
const pollRetryDelay = 5 * time.Second

// eventBufSize buffers registry announcements while a delivery is in flight.
const eventBufSize = 64

// Service is the Telegram side of the bridge. It delivers newly created
// interaction requests to the operator chat and routes everything coming back
// (button presses, replies, free-form text) through the correlator into the
// registry or the prompt queue.
type Service struct {
	env        *config.TelegramEnv
	bot        *Bot
	registry   *interaction.Registry
	queue      *promptqueue.Queue
	bus        *eventbus.Bus
	correlator *Correlator
}

func NewService(
	env *config.TelegramEnv,
	bot *Bot,
	registry *interaction.Registry,
	queue *promptqueue.Queue,
	bus *eventbus.Bus,
) *Service {
	return &Service{
		env:        env,
		bot:        bot,
		registry:   registry,
		queue:      queue,
		bus:        bus,
		correlator: NewCorrelator(env.ChatID, registry),
	}
}

// Start runs the outbound event loop and the inbound poll loop until ctx is
// cancelled. It is a no-op when the channel is not configured.
func (s *Service) Start(ctx context.Context) error {
	if !s.env.Configured() {
		slog.Info("telegram channel not configured, skipping")
		return nil
	}

	me, err := s.bot.GetMe(ctx)
	if err != nil {
		return cerr.NewError(cerr.Unavailable, "failed to verify telegram bot token", err)
	}
	slog.Info("telegram bot connected", "username", me.Username)

	var wg conc.WaitGroup
	wg.Go(func() { s.runEventLoop(ctx) })
	wg.Go(func() { s.runPollLoop(ctx) })
	wg.Wait()
	return nil
}

func (s *Service) runEventLoop(ctx context.Context) {
	subID, events := s.bus.Subscribe(eventBufSize)
	defer s.bus.Unsubscribe(subID)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Type == eventbus.EventRequestCreated {
				s.deliverRequest(ctx, event.ResourceID)
			}
		}
	}
}

// deliverRequest announces a new interaction request in the operator chat.
// For prompt-kind requests the waiting state is armed before the send, and
// rolled back if delivery fails so a later operator message is not
// misattributed to a request the operator never saw.
func (s *Service) deliverRequest(ctx context.Context, id string) {
	req, ok := s.registry.Get(id)
	if !ok {
		return
	}

	if req.Kind == interaction.KindPrompt {
		s.correlator.SetWaiting(s.env.ChatID, req.ID, req.Timeout)
	}

	text := formatRequest(req)
	if _, err := s.bot.SendMessage(ctx, s.env.ChatID, text, ControlsFor(req)); err != nil {
		s.correlator.ClearWaiting(req.ID)
		slog.Error("failed to deliver interaction request", "id", req.ID, "error", err)
		return
	}
	slog.Debug("delivered interaction request", "id", req.ID, "kind", req.Kind)
}

func formatRequest(req *interaction.Request) string {
	var title string
	switch req.Kind {
	case interaction.KindConfirmation:
		title = "❓ <b>Confirmation Required</b>"
	case interaction.KindSelection:
		title = "📋 <b>Selection Required</b>"
	default:
		title = "💬 <b>Input Required</b>"
	}
	return fmt.Sprintf("%s\n\n%s\n\nRequest ID: <code>%s</code>", title, req.Message, req.ID)
}

func (s *Service) runPollLoop(ctx context.Context) {
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := s.bot.GetUpdates(ctx, offset, s.env.PollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("telegram poll failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			s.handleUpdate(ctx, &update)
		}
	}
}

func (s *Service) handleUpdate(ctx context.Context, update *Update) {
	switch {
	case update.CallbackQuery != nil:
		s.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		s.handleMessage(ctx, update.Message)
	}
}

func (s *Service) handleCallback(ctx context.Context, query *CallbackQuery) {
	if err := s.bot.AnswerCallbackQuery(ctx, query.ID, ""); err != nil {
		slog.Warn("failed to answer callback query", "error", err)
	}
	if query.Message == nil {
		return
	}

	outcome := s.correlator.Correlate(&InboundEvent{
		SessionKey:  strconv.FormatInt(query.Message.Chat.ID, 10),
		ActionToken: query.Data,
		SenderLabel: senderLabel(query.From),
		EventKey:    "cb:" + query.ID,
	})

	switch outcome.Kind {
	case OutcomeResponse:
		accepted := s.registry.ProvideResponse(outcome.RequestID, outcome.Value)
		s.settleRequestMessage(ctx, query.Message)
		if accepted {
			s.ack(ctx, fmt.Sprintf("✅ Response recorded: <b>%v</b>", outcome.Value))
		} else {
			s.ack(ctx, "⚠️ This request is no longer pending.")
		}
	case OutcomeCancel:
		cancelled := s.registry.Cancel(outcome.RequestID)
		s.settleRequestMessage(ctx, query.Message)
		if cancelled {
			s.ack(ctx, "🚫 Request cancelled.")
		} else {
			s.ack(ctx, "⚠️ This request is no longer pending.")
		}
	case OutcomeUnauthorized:
		slog.Warn("callback from unauthorized chat", "chat_id", query.Message.Chat.ID)
	}
}

// settleRequestMessage removes the inline keyboard from an answered request
// message. Failures are cosmetic; duplicate presses are absorbed upstream.
func (s *Service) settleRequestMessage(ctx context.Context, msg *Message) {
	if err := s.bot.RemoveReplyMarkup(ctx, msg.Chat.ID, msg.MessageID); err != nil {
		slog.Debug("failed to remove reply markup", "error", err)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *Message) {
	if msg.From != nil && msg.From.IsBot {
		return
	}
	if msg.Text == "" {
		return
	}

	if s.handleCommand(ctx, msg) {
		return
	}

	var replyText string
	if msg.ReplyToMessage != nil {
		replyText = msg.ReplyToMessage.Text
	}
	outcome := s.correlator.Correlate(&InboundEvent{
		SessionKey:  strconv.FormatInt(msg.Chat.ID, 10),
		Text:        msg.Text,
		ReplyToText: replyText,
		SenderLabel: senderLabel(msg.From),
		EventKey:    fmt.Sprintf("%d_%d_%d", msg.Chat.ID, msg.MessageID, msg.Date),
	})

	switch outcome.Kind {
	case OutcomeResponse:
		if s.registry.ProvideResponse(outcome.RequestID, outcome.Value) {
			s.ack(ctx, "✅ Response recorded.")
		} else {
			s.ack(ctx, "⚠️ This request is no longer pending.")
		}
	case OutcomeExpired:
		s.ack(ctx, "⏰ That request has already timed out.")
	case OutcomePrompt:
		if !s.env.EnablePromptReceiving {
			return
		}
		if _, err := s.queue.Add(
			strconv.FormatInt(msg.Chat.ID, 10),
			msg.Text,
			senderLabel(msg.From),
		); err != nil {
			slog.Warn("failed to enqueue prompt", "error", err)
			switch cerr.CodeOf(err) {
			case cerr.ResourceExhausted:
				s.ack(ctx, "⚠️ The prompt queue is full. Try again after the agent catches up.")
			case cerr.FailedPrecondition:
				s.ack(ctx, "⚠️ Prompt receiving is disabled.")
			default:
				s.ack(ctx, "⚠️ Could not accept the message.")
			}
			return
		}
		s.ack(ctx, "📨 Message queued for the agent.")
	case OutcomeUnauthorized:
		slog.Warn("message from unauthorized chat", "chat_id", msg.Chat.ID)
	}
}

// handleCommand serves the bot commands and reports whether msg was one.
// Commands answer the chat they came from: /me exists so an operator can
// discover their chat id before the bridge is configured for it.
func (s *Service) handleCommand(ctx context.Context, msg *Message) bool {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	switch msg.Text {
	case "/start":
		s.reply(ctx, chatID, "👋 Operator bridge is online. Pending requests will appear here; reply or press buttons to answer them.")
		return true
	case "/me":
		s.reply(ctx, chatID, fmt.Sprintf("Chat ID: <code>%d</code>", msg.Chat.ID))
		return true
	}
	return false
}

func (s *Service) ack(ctx context.Context, text string) {
	s.reply(ctx, s.env.ChatID, text)
}

func (s *Service) reply(ctx context.Context, chatID, text string) {
	if _, err := s.bot.SendMessage(ctx, chatID, text, nil); err != nil {
		slog.Warn("failed to send acknowledgement", "error", err)
	}
}

func senderLabel(u *User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	label := u.FirstName
	if u.LastName != "" {
		label += " " + u.LastName
	}
	return label
}
