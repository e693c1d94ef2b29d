package openai

import (
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/lewisedginton/organizer/internal/conversation"
)

// toParams builds the chat completion request. defaultModel is used when the
// request does not name one.
func toParams(req conversation.Request, defaultModel string) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toTools(req.Tools)
	}
	if req.JSONReply {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func toMessages(msgs []conversation.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case conversation.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case conversation.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case conversation.RoleAssistant:
			out = append(out, assistantMessage(msg))
		case conversation.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}

// assistantMessage keeps tool calls so their results can be matched by id.
func assistantMessage(msg conversation.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 {
		return openai.AssistantMessage(msg.Content)
	}

	calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
	for _, c := range msg.ToolCalls {
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID:   c.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		})
	}
	p := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if msg.Content != "" {
		p.Content.OfString = openai.String(msg.Content)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &p}
}

func toTools(specs []conversation.ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, s := range specs {
		parameters := openai.FunctionParameters{}
		for k, v := range s.Parameters {
			parameters[k] = v
		}
		if _, ok := parameters["type"]; !ok {
			parameters["type"] = "object"
		}
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        s.Name,
				Description: openai.String(s.Description),
				Parameters:  parameters,
			},
		})
	}
	return out
}

func fromCompletion(completion *openai.ChatCompletion) (conversation.Completion, error) {
	if completion == nil {
		return conversation.Completion{}, fmt.Errorf("nil completion")
	}
	if len(completion.Choices) == 0 {
		return conversation.Completion{}, fmt.Errorf("no choices in response")
	}

	msg := completion.Choices[0].Message
	out := conversation.Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, conversation.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}
