// classifier.go implements intent classification. Triggers live in one
// ordered table; the first matching entry wins and anything unmatched
// resolves to the fallback intent. Matching is case-insensitive and
// deterministic. Slash commands are recognized before any trigger so an
// explicit command like "/search" can never be shadowed by a substring
// trigger (and "search code for '+' operator" is code search, not math).
package assistant

import (
	"regexp"
	"strings"
)

// Intent tags an inbound message with the handler that should serve it.
type Intent string

const (
	IntentCommand        Intent = "command"
	IntentGreeting       Intent = "greeting"
	IntentCodeSearchHelp Intent = "code_search_help"
	IntentCodeSearch     Intent = "code_search"
	IntentShowTasks      Intent = "show_tasks"
	IntentCompleteTask   Intent = "complete_task"
	IntentTask           Intent = "task"
	IntentMath           Intent = "math"
	IntentTranslate      Intent = "translate"
	IntentWeather        Intent = "weather"
	IntentCodeHelp       Intent = "code_help"
	IntentHelp           Intent = "help"
	IntentFallback       Intent = "fallback"
)

// triggerRule pairs an intent with its match predicate. The table order is
// the classification priority.
type triggerRule struct {
	intent Intent
	match  func(lower string) bool
}

var (
	greetingRe     = regexp.MustCompile(`\b(hello|hi|hey|start)\b`)
	completeTaskRe = regexp.MustCompile(`\bcomplete task\s+\d+`)
	taskRe         = regexp.MustCompile(`\b(remind|todo|task)\b`)
	weatherRe      = regexp.MustCompile(`\bweather\b`)
	helpRe         = regexp.MustCompile(`\bhelp\b`)
	codeHelpRe     = regexp.MustCompile(`\b(python|javascript|code|programming|debug)\b`)
)

// codeSearchTriggers are the phrases that select the code-search handler.
var codeSearchTriggers = []string{
	"search code", "find code", "search for", "find function",
	"find class", "search function", "search class", "code search",
	"grep for",
}

// mathTriggers select the math handler: keywords or any arithmetic operator.
var mathTriggers = []string{"calculate", "math", "+", "-", "*", "/", "="}

// triggerTable is consulted top to bottom; more specific intents come
// before generic substring triggers.
var triggerTable = []triggerRule{
	{IntentGreeting, func(s string) bool { return greetingRe.MatchString(s) }},
	{IntentCodeSearchHelp, func(s string) bool { return strings.Contains(s, "code search help") }},
	{IntentCodeSearch, containsAny(codeSearchTriggers)},
	{IntentShowTasks, func(s string) bool {
		return strings.Contains(s, "show tasks") || strings.Contains(s, "my tasks") ||
			strings.Contains(s, "list tasks")
	}},
	{IntentCompleteTask, func(s string) bool { return completeTaskRe.MatchString(s) }},
	{IntentTask, func(s string) bool { return taskRe.MatchString(s) }},
	{IntentMath, containsAny(mathTriggers)},
	{IntentTranslate, func(s string) bool {
		return strings.Contains(s, "translate") &&
			(strings.Contains(s, " to ") || strings.Contains(s, " in "))
	}},
	{IntentWeather, func(s string) bool { return weatherRe.MatchString(s) }},
	{IntentCodeHelp, func(s string) bool { return codeHelpRe.MatchString(s) }},
	{IntentHelp, func(s string) bool {
		return helpRe.MatchString(s) || strings.Contains(s, "what can you do")
	}},
}

func containsAny(triggers []string) func(string) bool {
	return func(s string) bool {
		for _, t := range triggers {
			if strings.Contains(s, t) {
				return true
			}
		}
		return false
	}
}

// IsCommand reports whether the message is an explicit slash command.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Classify maps a message to an intent. Commands win outright; otherwise
// the first matching trigger-table entry wins; otherwise fallback.
func Classify(text string) Intent {
	if IsCommand(text) {
		// "/search" is an explicit code-search command; everything else
		// goes through the command dispatcher.
		cmd := strings.ToLower(strings.Fields(strings.TrimSpace(text))[0])
		if cmd == "/search" {
			return IntentCodeSearch
		}
		return IntentCommand
	}

	lower := strings.ToLower(text)
	for _, rule := range triggerTable {
		if rule.match(lower) {
			return rule.intent
		}
	}
	return IntentFallback
}
