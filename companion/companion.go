// Package companion provides per-integration knowledge used while resolving
// capability arguments: field aliases, questions for a human and value checks.
package companion

import (
	"fmt"
	"maps"
	"regexp"
	"strings"

	ai "github.com/spetersoncode/toolflow"
)

// rule applies to the fields it matches. The first matching rule wins.
type rule struct {
	match   func(lower string) bool
	pattern *regexp.Regexp
	valid   func(value any) bool
	prompt  string
}

// Table is a table-driven companion.
type Table struct {
	piece    string
	aliases  map[string][]string
	rules    []rule
	fallback string
}

var _ ai.Companion = (*Table)(nil)

// Piece returns the integration the companion describes, or "" for Generic.
func (t *Table) Piece() string { return t.piece }

// Aliases returns a copy of the alias table.
func (t *Table) Aliases() map[string][]string {
	return maps.Clone(t.aliases)
}

// PromptForField returns the question to ask for field.
func (t *Table) PromptForField(field string) string {
	if r, ok := t.rule(field); ok && r.prompt != "" {
		return r.prompt
	}
	return fmt.Sprintf(t.fallback, field)
}

// IsValidValueForField checks value against the first rule matching field.
// Fields without a check accept anything.
func (t *Table) IsValidValueForField(field string, value any) bool {
	r, ok := t.rule(field)
	if !ok {
		return true
	}
	if r.valid != nil {
		return r.valid(value)
	}
	if r.pattern == nil {
		return true
	}
	str, isString := value.(string)
	if !isString {
		str = fmt.Sprint(value)
	}
	return r.pattern.MatchString(str)
}

func (t *Table) rule(field string) (rule, bool) {
	lower := strings.ToLower(field)
	for _, r := range t.rules {
		if r.match(lower) {
			return r, true
		}
	}
	return rule{}, false
}

func contains(sub string) func(string) bool {
	return func(lower string) bool { return strings.Contains(lower, sub) }
}

func equals(name string) func(string) bool {
	return func(lower string) bool { return lower == name }
}

func either(a, b func(string) bool) func(string) bool {
	return func(lower string) bool { return a(lower) || b(lower) }
}

// Generic returns a companion with no aliases, a generic prompt and no value
// checks. It is used for capabilities loaded from sources that carry no
// integration knowledge.
func Generic() *Table {
	return &Table{
		aliases:  map[string][]string{},
		fallback: `I need "%s" to proceed. Please provide it.`,
	}
}

var (
	slackChannelID = regexp.MustCompile(`(?i)^C[A-Z0-9]+$`)
	slackUserID    = regexp.MustCompile(`(?i)^U[A-Z0-9]+$`)
	slackTimestamp = regexp.MustCompile(`^\d+\.\d+$`)
	emailAddress   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	notionUUID     = regexp.MustCompile(`^[0-9a-fA-F]{32}$|^[0-9a-fA-F-]{36}$`)
)

// emailRule checks every field whose name mentions email.
var emailRule = rule{match: contains("email"), pattern: emailAddress}

// Slack returns the companion for Slack capabilities.
func Slack() *Table {
	return &Table{
		piece: "slack",
		aliases: map[string][]string{
			"channel": {"conversation_id", "chatId", "channelId"},
			"message": {"text", "body", "content"},
			"thread":  {"thread_id", "thread_ts", "parentThread"},
			"user":    {"user_id", "recipient", "handle", "username"},
			"ts":      {"timestamp", "msg_ts"},
			"file":    {"file_id", "filePath"},
		},
		rules: []rule{
			{
				match:   contains("channel"),
				pattern: slackChannelID,
				prompt:  "Please provide the Slack **Channel ID** (e.g., C04XXXXXX). You can find this by clicking on the channel name and checking the URL or channel details.",
			},
			{
				match:   contains("user"),
				pattern: slackUserID,
				prompt:  "Please provide the Slack **User ID** (e.g., U04XXXXXX). You can find this by clicking on the user's profile in Slack.",
			},
			{
				match:   either(equals("ts"), contains("timestamp")),
				pattern: slackTimestamp,
				prompt:  `I need the **message timestamp (ts)**. Open the Slack message, click on the "More actions" or message options, and copy the timestamp (e.g., "1718307682.227919").`,
			},
			{
				match:  equals("file"),
				prompt: "Please provide the **File ID** or path to the file you'd like to upload or interact with.",
			},
		},
		fallback: `I need "%s" to execute this Slack action. Please provide it.`,
	}
}

// GitHub returns the companion for GitHub capabilities.
func GitHub() *Table {
	return &Table{
		piece: "github",
		aliases: map[string][]string{
			"repo":        {"repository", "repo_name"},
			"owner":       {"organization", "username"},
			"issueNumber": {"issue", "issue_number", "id"},
			"prNumber":    {"pullRequest", "pr", "pr_number"},
			"title":       {"name"},
			"body":        {"description", "content"},
		},
		fallback: `I need "%s" to proceed with this GitHub action.`,
	}
}

// Gmail returns the companion for Gmail capabilities.
func Gmail() *Table {
	return &Table{
		piece: "gmail",
		aliases: map[string][]string{
			"to":       {"recipient", "email", "email_to"},
			"subject":  {"title", "topic"},
			"message":  {"body", "content", "text"},
			"threadId": {"conversation_id", "thread"},
		},
		rules: []rule{
			{
				match:   equals("to"),
				pattern: emailAddress,
				prompt:  "Who should I send this email to? Please provide the **email address**.",
			},
			{
				match:   contains("email"),
				pattern: emailAddress,
			},
		},
		fallback: `I need "%s" to proceed with the Gmail action.`,
	}
}

// Jira returns the companion for Jira capabilities.
func Jira() *Table {
	return &Table{
		piece: "jira",
		aliases: map[string][]string{
			"issueId":     {"issue", "issue_id"},
			"projectId":   {"project", "project_id", "key"},
			"summary":     {"title", "name"},
			"description": {"body", "details"},
			"assigneeId":  {"assignee", "user", "userId"},
		},
		fallback: `I need "%s" to proceed with this Jira action.`,
	}
}

// Notion returns the companion for Notion capabilities. Page and database
// ids must be UUIDs, with or without dashes.
func Notion() *Table {
	uuidPrompt := func(field string) rule {
		return rule{
			match:   contains(field),
			pattern: notionUUID,
			prompt: "Please provide the Notion **UUID**. You can find it in the Notion URL, like:\n" +
				"https://www.notion.so/Workspace/Page-Name-**UUID**\n→ Paste only the UUID part.",
		}
	}
	return &Table{
		piece: "notion",
		aliases: map[string][]string{
			"pageId":     {"parent", "parentId"},
			"databaseId": {"dbId", "database_id"},
			"title":      {"name"},
			"content":    {"body", "text"},
		},
		rules:    []rule{uuidPrompt("pageid"), uuidPrompt("databaseid")},
		fallback: `I need "%s" to execute this Notion action. Please provide it.`,
	}
}

// Trello returns the companion for Trello capabilities.
func Trello() *Table {
	return &Table{
		piece: "trello",
		aliases: map[string][]string{
			"cardId":   {"card", "card_id"},
			"listId":   {"list", "list_id"},
			"boardId":  {"board", "board_id"},
			"name":     {"title"},
			"desc":     {"description", "body"},
			"idMember": {"user", "member", "assignee"},
		},
		fallback: `I need "%s" to proceed with this Trello action.`,
	}
}

// Asana returns the companion for Asana capabilities.
func Asana() *Table {
	return &Table{
		piece: "asana",
		aliases: map[string][]string{
			"taskId":      {"task", "task_id"},
			"projectId":   {"project", "project_id"},
			"workspaceId": {"workspace", "workspace_id"},
			"assignee":    {"user", "userId", "email"},
			"name":        {"title"},
			"notes":       {"description", "body"},
		},
		rules:    []rule{emailRule},
		fallback: `I need "%s" to proceed with this Asana action.`,
	}
}

// ClickUp returns the companion for ClickUp capabilities.
func ClickUp() *Table {
	return &Table{
		piece: "clickup",
		aliases: map[string][]string{
			"taskId":      {"task", "task_id"},
			"listId":      {"list", "list_id"},
			"folderId":    {"folder", "folder_id"},
			"spaceId":     {"space", "space_id"},
			"name":        {"title"},
			"description": {"body", "notes"},
			"assignee":    {"user", "userId"},
		},
		fallback: `I need "%s" to proceed with this ClickUp action.`,
	}
}

// GoogleCalendar returns the companion for Google Calendar capabilities.
func GoogleCalendar() *Table {
	return &Table{
		piece: "google-calendar",
		aliases: map[string][]string{
			"calendarId":  {"calendar", "calendar_id"},
			"eventId":     {"event", "event_id"},
			"title":       {"summary", "name"},
			"description": {"details", "body"},
			"startTime":   {"start", "start_time"},
			"endTime":     {"end", "end_time"},
		},
		fallback: `I need "%s" to proceed with this Google Calendar action.`,
	}
}

// GoogleDrive returns the companion for Google Drive capabilities.
func GoogleDrive() *Table {
	return &Table{
		piece: "google-drive",
		aliases: map[string][]string{
			"fileId":   {"file", "file_id", "documentId"},
			"folderId": {"folder", "folder_id"},
			"name":     {"title", "filename"},
		},
		fallback: `Please provide the **%s** (file ID, folder ID, or name) to proceed with this Google Drive action.`,
	}
}

// Zoom returns the companion for Zoom capabilities.
func Zoom() *Table {
	return &Table{
		piece: "zoom",
		aliases: map[string][]string{
			"meetingId": {"meeting", "meeting_id"},
			"userId":    {"user", "user_id", "email"},
			"topic":     {"title", "name"},
			"agenda":    {"description", "details"},
		},
		rules:    []rule{emailRule},
		fallback: `I need "%s" to proceed with this Zoom action.`,
	}
}

// Calendly returns the companion for Calendly capabilities, including raw
// API calls described by endpoint and method.
func Calendly() *Table {
	return &Table{
		piece: "calendly",
		aliases: map[string][]string{
			"eventId":      {"id", "event_id"},
			"userId":       {"user_id", "user"},
			"inviteeId":    {"invitee_id"},
			"email":        {"recipient", "email_address"},
			"organization": {"org", "organization_id"},
			"endpoint":     {"url", "path", "type", "resource"},
			"method":       {"http_method", "verb"},
			"query":        {"queryParams", "params"},
			"body":         {"data", "payload"},
			"headers":      {"http_headers"},
		},
		rules: []rule{
			{match: equals("endpoint"), prompt: "Which Calendly API endpoint do you want to call? For example `/scheduled_events`."},
			{match: equals("method"), prompt: "What HTTP method should I use? (GET, POST, PATCH, DELETE)"},
			{match: contains("email"), pattern: emailAddress, prompt: "Please provide a valid email (e.g., john@example.com)."},
		},
		fallback: `I need "%s" to execute this Calendly action. Please provide it.`,
	}
}

// Calcom returns the companion for Cal.com capabilities.
func Calcom() *Table {
	return &Table{
		piece: "calcom",
		aliases: map[string][]string{
			"eventTypeId": {"event_id", "meeting_type"},
			"start":       {"start_time"},
			"end":         {"end_time"},
			"attendee":    {"guest", "participant"},
			"endpoint":    {"url", "path", "resource"},
			"method":      {"http_method", "verb"},
			"headers":     {"http_headers"},
			"query":       {"queryParams", "params"},
			"body":        {"data", "payload"},
		},
		rules: []rule{
			{
				match: contains("eventtypeid"),
				valid: func(value any) bool {
					s, ok := value.(string)
					return ok && len(s) > 3
				},
				prompt: "Please provide the **Event Type ID** (e.g., for a 30-minute meeting).",
			},
			{
				match:  either(equals("start"), equals("end")),
				prompt: `Please provide the **start/end time in ISO format**, like "2025-06-30T14:00:00Z".`,
			},
		},
		fallback: `I need "%s" to schedule this event.`,
	}
}

// ForPiece returns the companion for a known integration, or Generic.
// Piece names are matched ignoring case, spaces and separators.
func ForPiece(piece string) *Table {
	key := strings.NewReplacer(" ", "", "-", "", "_", "", ".", "").Replace(strings.ToLower(piece))
	switch key {
	case "slack":
		return Slack()
	case "github":
		return GitHub()
	case "gmail":
		return Gmail()
	case "jira":
		return Jira()
	case "notion":
		return Notion()
	case "trello":
		return Trello()
	case "asana":
		return Asana()
	case "clickup":
		return ClickUp()
	case "googlecalendar":
		return GoogleCalendar()
	case "googledrive":
		return GoogleDrive()
	case "zoom":
		return Zoom()
	case "calendly":
		return Calendly()
	case "calcom":
		return Calcom()
	default:
		return Generic()
	}
}
