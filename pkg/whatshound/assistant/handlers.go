// handlers.go implements the canned reply handlers: greeting, help, math,
// translation and weather stubs, code help, profile, and the slash-command
// dispatcher. Each handler turns (message, session) into a reply string and
// reports failures as user-facing text, never as errors or panics.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whatshound/pkg/whatshound/store"
)

func (a *Assistant) handleGreeting(sess *Session) string {
	name := ""
	if p, err := a.store.Profile(sess.UserID); err == nil && p.Name != "" {
		name = " " + p.Name
	}

	codeStatus := "❌ Disabled"
	if a.searchEnabled() {
		codeStatus = "✅ Available"
	}

	return fmt.Sprintf(`👋 Hello%s! I'm your WhatsApp AI assistant.

*Available Features:*
📚 Questions & Information
🧮 Math Calculations
📝 Task Management
💻 Programming Help
🔍 Code Search: %s

*Quick Commands:*
• "help" - Show all features
• "calculate 15 + 25" - Math
• "code search help" - Code search info

What can I help you with today?`, name, codeStatus)
}

func (a *Assistant) handleHelp() string {
	return `🤖 *WhatsApp Assistant Help*

*Core Features:*
• 📚 Answer questions
• 🧮 Math calculations
• 📝 Task reminders
• 💻 Programming help
• 🔍 Code search (if enabled)

*Examples:*
• "What's 15% of 200?"
• "Remind me to call mom"
• "Help with Python loops"
• "Search code for User class"

*Commands:*
• /help - This help message
• /profile - Show your profile
• /clear - Clear chat history
• /calculate [expression] - Math
• /remind [task] - Set reminder
• /translate [text] to [language] - Translate
• /weather [city] - Weather info

Just ask me anything naturally! 😊`
}

const mathUsage = "🧮 Please provide a mathematical expression!\n\nExample: `15 + 25 * 2`"

func (a *Assistant) handleMath(text string) string {
	expr := SanitizeExpression(text)
	if expr == "" {
		return mathUsage
	}
	v, err := EvalExpression(expr)
	if err != nil {
		if errors.Is(err, ErrDivisionByZero) {
			return "🧮 *Calculation Error:*\n\nDivision by zero is undefined. Please check the expression."
		}
		return "🧮 I couldn't calculate that. Please check the format.\n\nExample: `15 + 25 * 2`"
	}
	return fmt.Sprintf("🧮 *Calculation Result:*\n\n`%s` = *%s*", expr, FormatNumber(v))
}

func (a *Assistant) handleTranslate(text string) string {
	lower := strings.ToLower(text)
	sep := " to "
	idx := strings.LastIndex(lower, sep)
	if idx <= 0 {
		sep = " in "
		idx = strings.LastIndex(lower, sep)
	}
	if idx > 0 {
		source := strings.TrimSpace(strings.Replace(lower[:idx], "translate", "", 1))
		source = strings.TrimPrefix(source, "/")
		target := strings.TrimSpace(lower[idx+len(sep):])
		if source != "" && target != "" {
			return fmt.Sprintf(`🌍 *Translation Request:*

📝 Text: %s
🎯 To: %s

_Note: For actual translation, integrate with a translation API._`, source, target)
		}
	}
	return "🌍 *Translation Help:*\n\nFormat: `/translate [text] to [language]`\n\nExample: `/translate Hello to Spanish`"
}

func (a *Assistant) handleWeather(text string) string {
	lower := strings.ToLower(text)
	location := lower
	for _, prefix := range []string{"/weather", "weather in", "weather for", "weather"} {
		if idx := strings.Index(location, prefix); idx >= 0 {
			location = location[idx+len(prefix):]
			break
		}
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return "🌤️ *Weather Information:*\n\nPlease specify a location!\n\nExample: `/weather New York`"
	}
	return fmt.Sprintf(`🌤️ *Weather for %s:*

_Note: To get real weather data, integrate with a weather API._`, location)
}

func (a *Assistant) handleCodeHelp(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "python"):
		return `🐍 *Python Help Available!*

I can help with:
• Syntax questions
• Debugging errors
• Code optimization
• Best practices

*Example questions:*
• "How do I read a CSV file in Python?"
• "What's the best way to handle exceptions?"

What specific Python help do you need?`
	case strings.Contains(lower, "javascript"):
		return `⚡ *JavaScript Help Available!*

I can assist with:
• DOM manipulation
• Async/await patterns
• Debugging tips
• Performance optimization

What JavaScript topic can I help with?`
	default:
		return `💻 *Code Assistance:*

I can help with:
• Debugging errors
• Code optimization
• Best practices
• Language-specific questions

What programming language are you working with?`
	}
}

func (a *Assistant) handleProfile(userID string) string {
	p, err := a.store.Profile(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p = &store.UserProfile{UserID: userID, PreferredLanguage: "en", Timezone: "UTC"}
		} else {
			a.logger.Error("profile lookup failed", "user", userID, "err", err)
			return apologyReply
		}
	}
	name := p.Name
	if name == "" {
		name = "Not set"
	}
	memberSince := "today"
	if !p.CreatedAt.IsZero() {
		memberSince = p.CreatedAt.Format("2006-01-02")
	}
	return fmt.Sprintf(`👤 *Your Profile:*

📱 Phone: %s
👤 Name: %s
🌍 Language: %s
⏰ Timezone: %s
📅 Member since: %s

To update your profile, send:
• "My name is [name]"`, p.UserID, name, p.PreferredLanguage, p.Timezone, memberSince)
}

func (a *Assistant) handleFallback(text string) string {
	codeMark := "❌"
	if a.searchEnabled() {
		codeMark = "✅"
	}
	return fmt.Sprintf(`I understand you said: "%s"

I can help with:
🧮 *Math*: "Calculate 15 + 25"
📝 *Tasks*: "Remind me to call mom"
💻 *Code*: "Help with Python"
🔍 *Search*: "Search code for User class" %s

What would you like help with?`, text, codeMark)
}

// handleCommand dispatches explicit slash commands. Unknown commands get a
// pointer to /help instead of falling through to trigger matching.
func (a *Assistant) handleCommand(ctx context.Context, sess *Session, text string) string {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	cmd := strings.ToLower(parts[0])
	args := ""
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/help":
		return a.handleHelp()
	case "/profile":
		return a.handleProfile(sess.UserID)
	case "/clear":
		sess.ClearHistory()
		if err := a.store.ClearConversations(sess.UserID); err != nil {
			a.logger.Error("failed to clear conversations", "user", sess.UserID, "err", err)
		}
		return "🗑️ *Chat History Cleared!*\n\nYour conversation history has been reset. How can I help you today?"
	case "/calculate":
		if args == "" {
			return mathUsage
		}
		return a.handleMath(args)
	case "/remind":
		return a.handleTask(args, sess)
	case "/tasks":
		return a.handleShowTasks(sess)
	case "/translate":
		return a.handleTranslate(args)
	case "/weather":
		return a.handleWeather(args)
	default:
		return fmt.Sprintf("❓ Unknown command: %s\n\nType */help* to see available commands.", cmd)
	}
}

// maybeUpdateProfileName handles the "my name is X" profile mutation.
// Returns a confirmation reply when the message matched, or "".
func (a *Assistant) maybeUpdateProfileName(userID, text string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, "my name is ")
	if idx < 0 {
		return ""
	}
	name := strings.TrimSpace(text[idx+len("my name is "):])
	if name == "" {
		return ""
	}

	p, err := a.store.Profile(userID)
	if err != nil {
		p = &store.UserProfile{UserID: userID}
	}
	p.Name = name
	if err := a.store.SaveProfile(p); err != nil {
		a.logger.Error("failed to save profile name", "user", userID, "err", err)
		return apologyReply
	}
	return fmt.Sprintf("👤 Nice to meet you, %s! I've updated your profile.", name)
}
