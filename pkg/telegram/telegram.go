// Package telegram wraps the bot API: command and group handlers in, queued
// outbound messages with inline keyboards out.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"
)

// Message is an inbound message stripped down to what handlers need.
type Message struct {
	ChatID   int64
	Sender   string
	Username string
	Group    string
	Payload  string
	Text     string
}

// Button is one inline keyboard button. Data is carried back verbatim on the
// callback.
type Button struct {
	Unique string
	Text   string
	Data   string
}

type outbound struct {
	chatID int64
	text   string
	rows   [][]Button
}

type Bot struct {
	bot       *tb.Bot
	boot      time.Time
	adminChat int64
	messages  chan outbound
}

func New(token string, adminChat int64) (*Bot, error) {
	b, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: &tb.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: couldn't create bot: %w", err)
	}
	return &Bot{
		bot:       b,
		boot:      time.Now(),
		adminChat: adminChat,
		messages:  make(chan outbound, 100),
	}, nil
}

// Username is the bot's own handle, without the leading @.
func (b *Bot) Username() string {
	return b.bot.Me.Username
}

func (b *Bot) HandleCommand(command string, handler func(Message)) {
	b.bot.Handle(fmt.Sprintf("/%s", command), func(m *tb.Message) {
		if m.Time().Before(b.boot) {
			return
		}
		handler(newMessage(m))
	})
}

// HandleGroups passes on free text from groups and supergroups where the bot
// is mentioned by handle. Private chats and unaddressed chatter are ignored.
func (b *Bot) HandleGroups(handler func(Message)) {
	b.bot.Handle(tb.OnText, func(m *tb.Message) {
		if m.Time().Before(b.boot) {
			return
		}
		if m.Chat.Type != tb.ChatGroup && m.Chat.Type != tb.ChatSuperGroup {
			return
		}
		if !strings.Contains(m.Text, "@"+b.bot.Me.Username) {
			return
		}
		handler(newMessage(m))
	})
}

// HandleButton registers a callback handler for buttons created with the
// given unique id. The returned reply is flashed to the pressing user, and a
// non-nil rows value replaces the message's keyboard in place.
func (b *Bot) HandleButton(unique string, handler func(m Message, data string) (string, [][]Button)) {
	btn := tb.InlineButton{Unique: unique}
	b.bot.Handle(&btn, func(c *tb.Callback) {
		msg := Message{}
		if c.Message != nil {
			msg = newMessage(c.Message)
		}
		if c.Sender != nil {
			msg.Sender = strings.TrimSpace(fmt.Sprintf("%s %s", c.Sender.FirstName, c.Sender.LastName))
			msg.Username = c.Sender.Username
		}
		reply, rows := handler(msg, c.Data)
		if rows != nil && c.Message != nil {
			if _, err := b.bot.EditReplyMarkup(c.Message, markup(rows)); err != nil {
				log.Println(fmt.Errorf("telegram: couldn't edit keyboard: %w", err))
			}
		}
		if err := b.bot.Respond(c, &tb.CallbackResponse{Text: reply}); err != nil {
			log.Println(fmt.Errorf("telegram: couldn't respond to callback: %w", err))
		}
	})
}

// SendTo queues a message for delivery, optionally with an inline keyboard.
func (b *Bot) SendTo(chatID int64, text string, rows ...[]Button) {
	b.messages <- outbound{chatID: chatID, text: text, rows: rows}
}

func (b *Bot) Run(ctx context.Context) error {
	go b.bot.Start()
	defer b.bot.Stop()
	var msg outbound
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg = <-b.messages:
		}
		var opts []interface{}
		if strings.Contains(msg.text, "`") {
			opts = append(opts, tb.ModeMarkdown)
		}
		if len(msg.rows) > 0 {
			opts = append(opts, markup(msg.rows))
		}
		if _, err := b.bot.Send(&tb.Chat{ID: msg.chatID}, msg.text, opts...); err != nil {
			log.Println(fmt.Errorf("telegram: couldn't send to %d: %w", msg.chatID, err))
		}
		select {
		case <-ctx.Done():
			return nil
		// Wait to avoid rate limit errors
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Print logs locally and mirrors the line to the admin chat when one is
// configured.
func (b *Bot) Print(v ...interface{}) {
	msg := fmt.Sprintln(v...)
	log.Print(msg)
	if b.adminChat == 0 {
		return
	}
	select {
	case b.messages <- outbound{chatID: b.adminChat, text: msg}:
	default:
	}
}

func newMessage(m *tb.Message) Message {
	msg := Message{
		ChatID:  m.Chat.ID,
		Payload: m.Payload,
		Text:    m.Text,
	}
	if m.Sender != nil {
		msg.Sender = strings.TrimSpace(fmt.Sprintf("%s %s", m.Sender.FirstName, m.Sender.LastName))
		msg.Username = m.Sender.Username
	}
	if m.Chat.Type != tb.ChatPrivate {
		msg.Group = m.Chat.Title
	}
	return msg
}

func markup(rows [][]Button) *tb.ReplyMarkup {
	keyboard := make([][]tb.InlineButton, 0, len(rows))
	for _, row := range rows {
		line := make([]tb.InlineButton, 0, len(row))
		for _, btn := range row {
			line = append(line, tb.InlineButton{
				Unique: btn.Unique,
				Text:   btn.Text,
				Data:   btn.Data,
			})
		}
		keyboard = append(keyboard, line)
	}
	return &tb.ReplyMarkup{InlineKeyboard: keyboard}
}
