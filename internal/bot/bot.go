// Package bot turns inbound chat messages into resolver calls and builds
// the markdown replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inquire/internal/directory"
	"github.com/eldtechnologies/inquire/internal/matcher"
	"github.com/eldtechnologies/inquire/internal/models"
	"github.com/eldtechnologies/inquire/internal/qna"
)

// openListSize is how many unanswered questions "open" shows.
const openListSize = 10

// Reply is what the bot posts back to the room.
type Reply struct {
	Markdown string `json:"markdown"`
	// Failed marks the generic error reply; nothing was recorded.
	Failed bool `json:"-"`
}

const (
	failureText   = "Sorry there was an error processing your request."
	malformedText = "Sorry, I could not process that answer. Reply with `answer <number> <your response>` or `/a <number> <your response>`."
	helpText      = "I log every message you send me as a question and give it a number.<br>" +
		"**answer N text** or **/a N text**: answer question N<br>" +
		"**open**: show the last 10 unanswered questions<br>" +
		"**list**: link to this space's FAQ<br>" +
		"**sticky [text]**: show or set the sticky message (moderators)<br>" +
		"**mode [name]**: show or set the space mode (moderators)<br>" +
		"**help**: this message"
)

// Config holds the bot's presentation settings.
type Config struct {
	// Name is stripped from mentions in group rooms.
	Name string
	// PublicAddress is the base URL of the FAQ frontend.
	PublicAddress string
}

// Bot routes messages.
type Bot struct {
	resolver  *qna.Resolver
	messenger directory.Messenger
	cfg       Config
	logger    zerolog.Logger
}

// New creates a bot.
func New(resolver *qna.Resolver, messenger directory.Messenger, cfg Config, logger zerolog.Logger) *Bot {
	return &Bot{
		resolver:  resolver,
		messenger: messenger,
		cfg:       cfg,
		logger:    logger.With().Str("component", "bot").Logger(),
	}
}

// Handle processes one message and returns the reply for its room.
func (b *Bot) Handle(ctx context.Context, in models.InboundMessage) Reply {
	msg := &in
	msg.Text = matcher.StripMention(msg.Text, b.cfg.Name)

	if matcher.AnswerShaped(msg.Text) {
		return b.answer(ctx, msg)
	}

	cmd, rest := matcher.Command(msg.Text)
	switch cmd {
	case "list":
		return b.list(msg)
	case "open":
		return b.open(ctx, msg)
	case "sticky":
		return b.sticky(ctx, msg, rest)
	case "mode":
		return b.mode(ctx, msg, rest)
	case "help":
		return Reply{Markdown: helpText}
	default:
		return b.question(ctx, msg)
	}
}

func mention(email string) string {
	return fmt.Sprintf("<@personEmail:%s>", email)
}

func (b *Bot) faqLink(roomID string) string {
	return strings.TrimRight(b.cfg.PublicAddress, "/") + "/public/#/space/" + roomID
}

func (b *Bot) failure(err error, msg *models.InboundMessage, op string) Reply {
	b.logger.Error().Err(err).Str("room_id", msg.Channel).Str("op", op).Msg("request failed")
	return Reply{Markdown: failureText, Failed: true}
}

func (b *Bot) answer(ctx context.Context, msg *models.InboundMessage) Reply {
	res, err := b.resolver.HandleAnswer(ctx, msg)
	switch {
	case errors.Is(err, qna.ErrMalformedAnswerReference):
		return Reply{Markdown: malformedText}
	case errors.Is(err, qna.ErrQuestionNotFound):
		ref, _ := matcher.Match(msg.Text, "")
		return Reply{Markdown: fmt.Sprintf("Sorry, I could not find question **%d** in this space.", ref.Sequence)}
	case err != nil:
		return b.failure(err, msg, "answer")
	}

	b.notifyQuestioner(ctx, res)
	return Reply{Markdown: fmt.Sprintf("Ok %s your answer has been logged.", mention(msg.User))}
}

// notifyQuestioner sends the asker the original question and the new
// answer. Failures are logged only.
func (b *Bot) notifyQuestioner(ctx context.Context, res *qna.AnswerResult) {
	if b.messenger == nil || res.Question.AuthorID == "" {
		return
	}
	q := res.Question

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hello %s! ", mention(q.AuthorEmail))
	fmt.Fprintf(&sb, "Your question has been responded to by: %s. <br>", mention(res.Answer.AuthorEmail))
	if q.HTML != "" {
		fmt.Fprintf(&sb, "Original Question: %s<br>", q.HTML)
	} else {
		fmt.Fprintf(&sb, "Original Question: __%s__ <br>", q.Text)
	}
	if res.Answer.HTML != "" {
		fmt.Fprintf(&sb, "Answer: %s", res.Answer.HTML)
	} else {
		fmt.Fprintf(&sb, "Answer: **%s**. ", res.Answer.Text)
	}

	if err := b.messenger.SendDirect(ctx, q.AuthorID, sb.String()); err != nil {
		b.logger.Warn().Err(err).
			Str("room_id", q.RoomID).
			Int64("sequence", q.Sequence).
			Str("person_id", q.AuthorID).
			Msg("could not notify questioner")
	}
}

func (b *Bot) question(ctx context.Context, msg *models.InboundMessage) Reply {
	res, err := b.resolver.HandleQuestion(ctx, msg)
	if err != nil {
		return b.failure(err, msg, "question")
	}
	seq := res.Question.Sequence

	var sb strings.Builder
	fmt.Fprintf(&sb, "Ok %s ", mention(msg.User))
	if body := unwrapParagraph(msg.HTML); body != "" {
		fmt.Fprintf(&sb, "your question: %s", body)
	} else {
		fmt.Fprintf(&sb, "your question: __%s__", msg.Text)
	}
	fmt.Fprintf(&sb, " Has been logged as #: **%d**", seq)
	fmt.Fprintf(&sb, "<br>To answer this question please reply with: answer or <code>/a %d [your response].</code> ", seq)
	return Reply{Markdown: sb.String()}
}

// unwrapParagraph drops a single enclosing <p> element.
func unwrapParagraph(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<p>") && strings.HasSuffix(s, "</p>") {
		return s[len("<p>") : len(s)-len("</p>")]
	}
	return s
}

func (b *Bot) list(msg *models.InboundMessage) Reply {
	return Reply{Markdown: fmt.Sprintf("%s Please click [here](%s) to view this rooms FAQ. ",
		mention(msg.User), b.faqLink(msg.Channel))}
}

func (b *Bot) open(ctx context.Context, msg *models.InboundMessage) Reply {
	page, err := b.resolver.OpenQuestions(ctx, msg.Channel, openListSize)
	if err != nil {
		return b.failure(err, msg, "open")
	}
	if len(page.Items) == 0 {
		return Reply{Markdown: "There are no unanswered questions in this space."}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Here are the last %d unanswered questions: <br>", mention(msg.User), len(page.Items))
	for _, q := range page.Items {
		fmt.Fprintf(&sb, "Question **%d**: _%s_ by %s.<br>", q.Sequence, q.Text, q.DisplayName)
	}
	if page.Total > len(page.Items) {
		fmt.Fprintf(&sb, "Click for [more](%s). ", b.faqLink(msg.Channel))
	}
	return Reply{Markdown: sb.String()}
}

func (b *Bot) sticky(ctx context.Context, msg *models.InboundMessage, text string) Reply {
	if text == "" {
		room, err := b.resolver.Room(ctx, msg.Channel)
		if err != nil {
			return b.failure(err, msg, "sticky")
		}
		if room.Sticky == "" {
			return Reply{Markdown: "No sticky message is set for this space."}
		}
		return Reply{Markdown: "Sticky message: " + room.Sticky}
	}

	err := b.resolver.SetSticky(ctx, msg, text)
	switch {
	case errors.Is(err, qna.ErrNotModerator):
		return Reply{Markdown: "Only moderators can change the sticky message."}
	case err != nil:
		return b.failure(err, msg, "sticky")
	}
	return Reply{Markdown: "Sticky message updated."}
}

func (b *Bot) mode(ctx context.Context, msg *models.InboundMessage, name string) Reply {
	if name == "" {
		room, err := b.resolver.Room(ctx, msg.Channel)
		if err != nil {
			return b.failure(err, msg, "mode")
		}
		if room.Mode == "" {
			return Reply{Markdown: "This space uses the default mode."}
		}
		return Reply{Markdown: fmt.Sprintf("This space is in **%s** mode.", room.Mode)}
	}

	err := b.resolver.SetMode(ctx, msg, strings.ToLower(name))
	switch {
	case errors.Is(err, qna.ErrNotModerator):
		return Reply{Markdown: "Only moderators can change the mode."}
	case err != nil:
		return b.failure(err, msg, "mode")
	}
	return Reply{Markdown: fmt.Sprintf("Mode set to **%s**.", strings.ToLower(name))}
}
