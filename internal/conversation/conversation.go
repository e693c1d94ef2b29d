// Package conversation holds the provider-neutral types exchanged between the
// assistant's components: turns, model messages, tool calls and replies.
package conversation

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// IsTurnRole reports whether r may appear in a caller-supplied history.
func (r Role) IsTurnRole() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Turn is one entry of a conversation history. Tool turns carry the name of
// the tool whose result they hold.
type Turn struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	ToolName string `json:"toolName,omitempty"`
}

// UserTurn and AssistantTurn build the two turn kinds that get persisted.
func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// ToolCall is a tool invocation requested by the model. Arguments is the raw JSON object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one entry of a model request.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// SystemMessage, UserMessage and AssistantMessage build plain messages.
func SystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func UserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ToolResultMessage carries a tool result back to the model.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// FromTurns converts a history into model messages. Tool turns without a call
// id cannot be replayed and are sent as assistant notes. System and unknown
// roles are dropped; the system message is always built server side.
func FromTurns(turns []Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleUser, RoleAssistant:
			msgs = append(msgs, Message{Role: t.Role, Content: t.Content})
		case RoleTool:
			msgs = append(msgs, AssistantMessage("["+t.ToolName+"] "+t.Content))
		}
	}
	return msgs
}

// Completion is the model's answer to one request.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model asked for tools.
func (c Completion) HasToolCalls() bool {
	return len(c.ToolCalls) > 0
}

// Credentials is the delegated Google credential pair supplied by the caller.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Valid reports whether an access token is present.
func (c Credentials) Valid() bool {
	return c.AccessToken != ""
}

// ToolSpec describes one callable tool to the model. Parameters is a JSON
// schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one model call. A zero Model selects the client's default.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
	JSONReply   bool
}
