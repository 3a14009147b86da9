package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"lookupbot/internal/knowledge"
	"lookupbot/internal/model"
)

// Engine is the knowledge-base surface the bot drives.
type Engine interface {
	AddCommand(ctx context.Context, raw string) (model.Entry, error)
	Delete(ctx context.Context, rawKeys string) (model.DeleteResult, error)
	EditCommand(ctx context.Context, raw string) ([]string, bool, error)
	Match(message string) []string
}

const (
	ButtonAdd    = "➕ Add entry"
	ButtonDelete = "🗑 Delete entry"
	ButtonEdit   = "✏️ Edit entry"

	addUsage    = "`/add name1,name2 text`"
	deleteUsage = "`/delete name`"
	editUsage   = "`/edit name new text`"
)

var startText = "*Hello!*\n\n" +
	"I am a reference bot. Send me a name and I will find the matching notes.\n\n" +
	"Use the menu below or these commands:\n\n" +
	addUsage + "\n" +
	deleteUsage + "\n" +
	editUsage

// Reply is one outgoing message produced for an inbound text.
type Reply struct {
	Text string
	// Quote sends the reply as a reply to the inbound message.
	Quote bool
	// Menu attaches the reply keyboard.
	Menu bool
}

// Handle routes one inbound text to a command or to the matcher and returns
// the replies to send, in order.
func Handle(ctx context.Context, engine Engine, text string) []Reply {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "➕"):
		return []Reply{{Text: "Use the format:\n" + addUsage}}
	case strings.HasPrefix(text, "🗑"):
		return []Reply{{Text: "Use the format:\n" + deleteUsage}}
	case strings.HasPrefix(text, "✏"):
		return []Reply{{Text: "Use the format:\n" + editUsage}}
	}

	if name, args, ok := parseCommand(text); ok {
		switch name {
		case "start", "help":
			return []Reply{{Text: startText, Menu: true}}
		case "add":
			return handleAdd(ctx, engine, args)
		case "delete":
			return handleDelete(ctx, engine, args)
		case "edit":
			return handleEdit(ctx, engine, args)
		}
	}
	return handleLookup(engine, text)
}

// parseCommand splits "/name@bot args" into its lowercase name and argument
// text.
func parseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head := text[1:]
	if idx := strings.IndexFunc(head, unicode.IsSpace); idx >= 0 {
		args = strings.TrimSpace(head[idx:])
		head = head[:idx]
	}
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), args, true
}

func handleAdd(ctx context.Context, engine Engine, args string) []Reply {
	entry, err := engine.AddCommand(ctx, args)
	if err != nil {
		return []Reply{formatError(err, addUsage)}
	}
	return []Reply{{Text: fmt.Sprintf("✅ Entry *%s* added!", joinKeys(entry.Keys)), Quote: true}}
}

func handleDelete(ctx context.Context, engine Engine, args string) []Reply {
	res, err := engine.Delete(ctx, args)
	if err != nil {
		return []Reply{formatError(err, deleteUsage)}
	}
	var b strings.Builder
	if len(res.Deleted) > 0 {
		fmt.Fprintf(&b, "✅ Entry *%s* deleted!\n", joinKeys(res.Deleted))
	}
	if len(res.NotFound) > 0 {
		fmt.Fprintf(&b, "⚠️ Entry *%s* not found.", joinKeys(res.NotFound))
	}
	return []Reply{{Text: strings.TrimRight(b.String(), "\n"), Quote: true}}
}

func handleEdit(ctx context.Context, engine Engine, args string) []Reply {
	keys, found, err := engine.EditCommand(ctx, args)
	if err != nil {
		return []Reply{formatError(err, editUsage)}
	}
	if !found {
		return []Reply{{Text: fmt.Sprintf("⚠️ Text for *%s* not found.", joinKeys(keys)), Quote: true}}
	}
	return []Reply{{Text: fmt.Sprintf("✅ Text for *%s* updated!", joinKeys(keys)), Quote: true}}
}

func handleLookup(engine Engine, text string) []Reply {
	texts := engine.Match(text)
	if len(texts) == 0 {
		return []Reply{{Text: "😕 I could not find a matching answer.\nAdd one with:\n" + addUsage}}
	}
	out := make([]Reply, 0, len(texts))
	for _, t := range texts {
		out = append(out, Reply{Text: t})
	}
	return out
}

func formatError(err error, usage string) Reply {
	if errors.Is(err, knowledge.ErrInputFormat) {
		return Reply{Text: "❗️ Format: " + usage, Quote: true}
	}
	return Reply{Text: "❗️ Something went wrong, try again later.", Quote: true}
}

func joinKeys(keys []string) string {
	return escapeMarkdown(strings.Join(keys, ", "))
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
