package logger

import (
	"fmt"
	"strconv"
	"time"
)

// StringField returns a LogField for a string value.
func StringField(key, value string) LogField {
	return LogField{Key: key, Value: value}
}

// IntField returns a LogField for an integer value.
func IntField(key string, value int) LogField {
	return LogField{Key: key, Value: strconv.Itoa(value)}
}

// Int64Field returns a LogField for an int64 value.
func Int64Field(key string, value int64) LogField {
	return LogField{Key: key, Value: strconv.FormatInt(value, 10)}
}

// BoolField returns a LogField for a boolean value.
func BoolField(key string, value bool) LogField {
	return LogField{Key: key, Value: strconv.FormatBool(value)}
}

// DurationField returns a LogField for a time.Duration value.
func DurationField(key string, value time.Duration) LogField {
	return LogField{Key: key, Value: value.String()}
}

// TimeField returns a LogField for a time.Time value formatted as RFC3339.
func TimeField(key string, value time.Time) LogField {
	return LogField{Key: key, Value: value.Format(time.RFC3339)}
}

// ErrorField returns a LogField for an error value.
func ErrorField(err error) LogField {
	if err == nil {
		return LogField{Key: "error", Value: "<nil>"}
	}
	return LogField{Key: "error", Value: err.Error()}
}

// Field creates a log field with automatic type conversion for less common types
func Field[T any](key string, value T) LogField {
	return LogField{Key: key, Value: convertValue(value)}
}

func convertValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case time.Duration:
		return v.String()
	case error:
		if v == nil {
			return "<nil>"
		}
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CorrelationIDField returns a LogField for a correlation ID.
func CorrelationIDField(id string) LogField {
	return StringField(CorrelationIDFieldKey, id)
}

// OwnerField identifies the user a turn or poll belongs to.
func OwnerField(owner string) LogField {
	return StringField("owner", owner)
}

// TurnField carries the identifier of a single orchestrated turn.
func TurnField(id string) LogField {
	return StringField("turn_id", id)
}

// ToolField names the tool being invoked.
func ToolField(name string) LogField {
	return StringField("tool", name)
}

// StateField records a voice session state.
func StateField(key string, state fmt.Stringer) LogField {
	return StringField(key, state.String())
}

// HTTPMethodField returns a LogField for an HTTP method.
func HTTPMethodField(method string) LogField {
	return StringField("http_method", method)
}

// HTTPPathField returns a LogField for an HTTP path.
func HTTPPathField(path string) LogField {
	return StringField("http_path", path)
}

// HTTPStatusField returns a LogField for an HTTP status code.
func HTTPStatusField(status int) LogField {
	return IntField("http_status", status)
}

// ClientIPField returns a LogField for a client IP address.
func ClientIPField(ip string) LogField {
	return StringField("client_ip", ip)
}
