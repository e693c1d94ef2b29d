package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedReply means the model output did not match the reply envelope.
var ErrMalformedReply = errors.New("malformed reply")

// Mode is the persona the assistant answered in.
type Mode string

const (
	ModeStrategist Mode = "strategist"
	ModeDoer       Mode = "doer"
)

const (
	DefaultLanguage = "pt-BR"

	signInText = "I need access to your Google account to do that. Please log in first."
	fatalText  = "Senhor, estou com dificuldades técnicas para me conectar aos servidores agora. Parece que o sistema está em manutenção."
)

// Reply is the structured envelope returned to callers.
type Reply struct {
	Mode     Mode   `json:"mode"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

// SignInReply is returned when tools are needed but no credentials were supplied.
func SignInReply() Reply {
	return Reply{Mode: ModeDoer, Text: signInText, Language: "en-US"}
}

// FatalReply is the apology returned when no usable reply could be produced.
func FatalReply() Reply {
	return Reply{Mode: ModeDoer, Text: fatalText, Language: DefaultLanguage}
}

const replySchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "mode": {"type": "string", "enum": ["strategist", "doer"]},
    "text": {"type": "string", "minLength": 1},
    "language": {"type": "string"}
  }
}`

var replySchemaLoader = gojsonschema.NewStringLoader(replySchema)

// ParseReply validates raw model output against the reply envelope and fills
// defaults for mode and language.
func ParseReply(raw string) (Reply, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reply{}, fmt.Errorf("%w: empty output", ErrMalformedReply)
	}

	res, err := gojsonschema.Validate(replySchemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if !res.Valid() {
		return Reply{}, fmt.Errorf("%w: %s", ErrMalformedReply, describe(res.Errors()))
	}

	var r Reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if r.Mode == "" {
		r.Mode = ModeDoer
	}
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	return r, nil
}

// ExtractText returns the text field of a JSON reply envelope, or ok=false
// when content is not such an envelope.
func ExtractText(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var env struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Text == nil {
		return "", false
	}
	return *env.Text, true
}

func describe(errs []gojsonschema.ResultError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}
