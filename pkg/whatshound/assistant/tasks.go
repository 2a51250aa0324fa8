// tasks.go implements the reminder/task handlers. Tasks live in the session
// context under "tasks" (persisted with the context blob); reminders with a
// recognizable due time also get a row in the reminders table so the
// scheduler can announce them.
package assistant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"whatshound/pkg/whatshound/store"
)

// taskLeadIns are stripped from the front of a reminder message to extract
// the task text. Longer phrases come first so "remind me to" wins over
// "remind me".
var taskLeadIns = []string{
	"remind me to",
	"remind me",
	"remember to",
	"don't forget to",
	"dont forget to",
	"todo:",
	"todo",
	"task:",
}

const taskUsage = "📝 *Task Management:*\n\n• 'Remind me to [task]' - Add reminder\n• 'Show tasks' - View all tasks\n• 'Complete task [number]' - Mark done"

var (
	inDurationRe   = regexp.MustCompile(`\bin\s+(\d+)\s+(minute|min|hour|day)s?\b`)
	atClockRe      = regexp.MustCompile(`\bat\s+(\d{1,2}):(\d{2})\b`)
	tomorrowRe     = regexp.MustCompile(`\btomorrow\b`)
	completeTaskNo = regexp.MustCompile(`\bcomplete task\s+(\d+)`)
)

// handleTask extracts the task text, records it, and confirms. An empty
// extraction returns the usage prompt without mutating any state.
func (a *Assistant) handleTask(text string, sess *Session) string {
	task := strings.ToLower(strings.TrimSpace(text))
	for _, lead := range taskLeadIns {
		if idx := strings.Index(task, lead); idx >= 0 {
			task = task[idx+len(lead):]
			break
		}
	}
	task = strings.TrimSpace(task)
	if task == "" {
		return taskUsage
	}

	now := time.Now()
	due, task := extractDueTime(task, now)

	sess.AddTask(Task{Task: task, CreatedAt: now, Completed: false})

	// Best-effort reminder row; the session context stays authoritative
	// for listings even if this write fails.
	if _, err := a.store.AddReminder(&store.Reminder{
		UserID:    sess.UserID,
		Task:      task,
		DueAt:     due,
		CreatedAt: now,
	}); err != nil {
		a.logger.Error("failed to persist reminder", "user", sess.UserID, "err", err)
	}

	reply := fmt.Sprintf("✅ *Reminder Set!*\n\nI'll remember: %s", task)
	if due != nil {
		reply += fmt.Sprintf("\n⏰ Due: %s", due.Format("Mon 15:04"))
	}
	return reply + "\n\nType 'show tasks' to see all reminders."
}

// handleShowTasks lists the stored tasks with completed/pending markers.
// Read-only.
func (a *Assistant) handleShowTasks(sess *Session) string {
	tasks := sess.Tasks()
	if len(tasks) == 0 {
		return "📝 You don't have any tasks yet!\nTry: 'Remind me to call mom'"
	}

	var b strings.Builder
	b.WriteString("📝 *Your Tasks:*\n")
	for i, t := range tasks {
		marker := "⏳"
		if t.Completed {
			marker = "✅"
		}
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, marker, t.Task)
	}
	return b.String()
}

// handleCompleteTask flips the completed flag on the numbered task.
func (a *Assistant) handleCompleteTask(text string, sess *Session) string {
	m := completeTaskNo.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return taskUsage
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return taskUsage
	}

	tasks := sess.Tasks()
	if n < 1 || n > len(tasks) {
		return fmt.Sprintf("📝 Task %d doesn't exist. You have %d task(s). Type 'show tasks' to see them.", n, len(tasks))
	}
	tasks[n-1].Completed = true
	sess.SetTasks(tasks)
	return fmt.Sprintf("✅ Task %d marked as done: %s", n, tasks[n-1].Task)
}

// extractDueTime pulls a simple due-time phrase out of the task text:
// "in N minutes/hours/days", "at HH:MM", or "tomorrow". The matched phrase
// is removed from the returned task text.
func extractDueTime(task string, now time.Time) (*time.Time, string) {
	if m := inDurationRe.FindStringSubmatch(task); m != nil {
		n, _ := strconv.Atoi(m[1])
		var d time.Duration
		switch m[2] {
		case "minute", "min":
			d = time.Duration(n) * time.Minute
		case "hour":
			d = time.Duration(n) * time.Hour
		case "day":
			d = time.Duration(n) * 24 * time.Hour
		}
		due := now.Add(d)
		return &due, cleanTask(inDurationRe.ReplaceAllString(task, ""))
	}

	if m := atClockRe.FindStringSubmatch(task); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh < 24 && mm < 60 {
			due := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
			if !due.After(now) {
				due = due.Add(24 * time.Hour)
			}
			return &due, cleanTask(atClockRe.ReplaceAllString(task, ""))
		}
	}

	if tomorrowRe.MatchString(task) {
		due := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location()).Add(24 * time.Hour)
		return &due, cleanTask(tomorrowRe.ReplaceAllString(task, ""))
	}

	return nil, task
}

func cleanTask(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
