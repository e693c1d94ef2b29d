package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lewisedginton/organizer/internal/conversation"
)

// Name is a registry key exposed to the model.
type Name string

const (
	ListCalendarEventsTool   Name = "list_calendar_events"
	CreateCalendarEventTool  Name = "create_calendar_event"
	AddContactTool           Name = "add_contact"
	SendEmailTool            Name = "send_email"
	ListRecentEmailsTool     Name = "list_recent_emails"
	CreateTaskTool           Name = "create_task"
	ListTasksTool            Name = "list_tasks"
	CreateDocTool            Name = "create_doc"
	GenerateMapsLinkTool     Name = "generate_maps_link"
	CheckProactiveStatusTool Name = "check_proactive_status"
	SendWhatsAppMessageTool  Name = "send_whatsapp_message"
)

type entry struct {
	name        Name
	description string
	schema      string
	decode      func([]byte) (Invocation, error)

	loader gojsonschema.JSONLoader
}

func decodeInto[T Invocation](raw []byte) (Invocation, error) {
	var inv T
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&inv); err != nil {
		return nil, err
	}
	return inv, nil
}

var registry = []*entry{
	{
		name:        ListCalendarEventsTool,
		description: "List upcoming events from the user's Google Calendar.",
		schema: `{"type":"object","properties":{
			"timeMin":{"type":"string","description":"Start time (ISO string), defaults to now."},
			"maxResults":{"type":"integer","minimum":1,"maximum":50,"description":"Max number of events to fetch, default 5."}}}`,
		decode: decodeInto[ListCalendarEvents],
	},
	{
		name:        CreateCalendarEventTool,
		description: "Create a new event in the user's Google Calendar.",
		schema: `{"type":"object","required":["summary","startDateTime","endDateTime"],"properties":{
			"summary":{"type":"string","minLength":1,"description":"Title of the event."},
			"description":{"type":"string","description":"Description or details."},
			"startDateTime":{"type":"string","minLength":1,"description":"Start time (ISO string)."},
			"endDateTime":{"type":"string","minLength":1,"description":"End time (ISO string)."}}}`,
		decode: decodeInto[CreateCalendarEvent],
	},
	{
		name:        AddContactTool,
		description: "Add a new contact to Google Contacts.",
		schema: `{"type":"object","required":["givenName"],"properties":{
			"givenName":{"type":"string","minLength":1,"description":"First name."},
			"familyName":{"type":"string","description":"Last name."},
			"phoneNumber":{"type":"string","description":"Phone number."},
			"email":{"type":"string","description":"Email address."}}}`,
		decode: decodeInto[AddContact],
	},
	{
		name:        SendEmailTool,
		description: "Send an email via Gmail.",
		schema: `{"type":"object","required":["to","subject","body"],"properties":{
			"to":{"type":"string","minLength":3,"description":"Recipient email address."},
			"subject":{"type":"string","description":"Email subject."},
			"body":{"type":"string","description":"Email body content."}}}`,
		decode: decodeInto[SendEmail],
	},
	{
		name:        ListRecentEmailsTool,
		description: "List recent emails from Gmail inbox.",
		schema: `{"type":"object","properties":{
			"maxResults":{"type":"integer","minimum":1,"maximum":20,"description":"Number of emails to fetch (default 3)."}}}`,
		decode: decodeInto[ListRecentEmails],
	},
	{
		name:        CreateTaskTool,
		description: "Create a new task in Google Tasks.",
		schema: `{"type":"object","required":["title"],"properties":{
			"title":{"type":"string","minLength":1,"description":"Title of the task."},
			"notes":{"type":"string","description":"Notes or description."}}}`,
		decode: decodeInto[CreateTask],
	},
	{
		name:        ListTasksTool,
		description: "List active tasks from default list.",
		schema: `{"type":"object","properties":{
			"maxResults":{"type":"integer","minimum":1,"maximum":100,"description":"Max tasks to list."}}}`,
		decode: decodeInto[ListTasks],
	},
	{
		name:        CreateDocTool,
		description: "Create a new Google Doc.",
		schema: `{"type":"object","required":["title"],"properties":{
			"title":{"type":"string","minLength":1,"description":"Title of the document."},
			"content":{"type":"string","description":"Initial text content."}}}`,
		decode: decodeInto[CreateDoc],
	},
	{
		name:        GenerateMapsLinkTool,
		description: "Generate a Google Maps navigation link.",
		schema: `{"type":"object","required":["destination"],"properties":{
			"destination":{"type":"string","minLength":1,"description":"Destination address or place name."},
			"mode":{"type":"string","enum":["driving","walking","transit","bicycling"],"description":"Travel mode (driving, walking, transit). Default driving."}}}`,
		decode: decodeInto[GenerateMapsLink],
	},
	{
		name:        CheckProactiveStatusTool,
		description: "Scans calendar and tasks for upcoming items in the next 4 hours.",
		schema:      `{"type":"object","properties":{}}`,
		decode:      decodeInto[CheckProactiveStatus],
	},
	{
		name:        SendWhatsAppMessageTool,
		description: "Send a message via WhatsApp through n8n.",
		schema: `{"type":"object","required":["contactName","message"],"properties":{
			"contactName":{"type":"string","minLength":1,"description":"Name of the recipient."},
			"phoneNumber":{"type":"string","description":"Phone number if known."},
			"message":{"type":"string","minLength":1,"description":"The content of the message."}}}`,
		decode: decodeInto[SendWhatsAppMessage],
	},
}

var byName = func() map[Name]*entry {
	m := make(map[Name]*entry, len(registry))
	for _, e := range registry {
		e.loader = gojsonschema.NewStringLoader(e.schema)
		m[e.name] = e
	}
	return m
}()

// Definitions returns every registered tool in a stable order.
func Definitions() []conversation.ToolSpec {
	defs := make([]conversation.ToolSpec, 0, len(registry))
	for _, e := range registry {
		var params map[string]any
		if err := json.Unmarshal([]byte(e.schema), &params); err != nil {
			panic(fmt.Sprintf("tool %s: invalid schema: %v", e.name, err))
		}
		defs = append(defs, conversation.ToolSpec{Name: string(e.name), Description: e.description, Parameters: params})
	}
	return defs
}

// Decode validates raw arguments against the tool's schema and returns the
// typed invocation. Empty arguments are treated as an empty object.
func Decode(name string, raw string) (Invocation, error) {
	e, ok := byName[Name(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}

	res, err := gojsonschema.Validate(e.loader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			msgs = append(msgs, re.String())
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidArguments, name, strings.Join(msgs, "; "))
	}

	inv, err := e.decode([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	return inv, nil
}
