// Package config loads tagged configuration structs from an optional YAML file
// and the process environment.
//
// Supported tags:
//
//	env:"NAME"        environment variable overriding the field
//	yaml:"name"       key in the YAML file
//	default:"value"   applied when the field is still zero after loading
//	required:"true"   loading fails when the field is zero and has no default
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Validator lets config structs check themselves after loading.
type Validator interface {
	Validate() error
}

// setFromString assigns raw to field according to the field's kind.
func setFromString(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %s to duration: %v", raw, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert %s to int: %v", raw, err)
		}
		field.SetInt(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("failed to convert %s to float: %v", raw, err)
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %s to bool: %v", raw, err)
		}
		field.SetBool(v)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

// applyEnv walks val and overrides tagged fields from the environment. It returns
// the set of fields that were explicitly provided.
func applyEnv(val reflect.Value, typ reflect.Type, set map[string]bool) error {
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyEnv(field, fieldType.Type, set); err != nil {
				return err
			}
			continue
		}

		name := fieldType.Tag.Get("env")
		if name == "" {
			continue
		}
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		if err := setFromString(field, raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		set[typ.Name()+"."+fieldType.Name] = true
	}
	return nil
}

// applyDefaults fills zero fields from their default tag and reports missing required ones.
func applyDefaults(val reflect.Value, typ reflect.Type, set map[string]bool) error {
	var result error
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyDefaults(field, fieldType.Type, set); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}

		def, hasDefault := fieldType.Tag.Lookup("default")
		required := isTrue(fieldType.Tag.Get("required")) && def == ""

		if !field.IsZero() {
			continue
		}
		if required {
			result = multierror.Append(result, fmt.Errorf("required field env:%s / yaml:%s is missing",
				fieldType.Tag.Get("env"), fieldType.Tag.Get("yaml")))
			continue
		}
		if !hasDefault || def == "" || set[typ.Name()+"."+fieldType.Name] {
			continue
		}
		if err := setFromString(field, def); err != nil {
			result = multierror.Append(result, fmt.Errorf("default for %s: %w", fieldType.Name, err))
		}
	}
	return result
}

func isTrue(tag string) bool {
	tag = strings.ToLower(tag)
	return tag == "true" || tag == "1"
}

func validate[T any](dest *T) error {
	if v, ok := any(dest).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// GetConfigFromEnvVars loads configuration from environment variables only.
//
//	var cfg MyConfig
//	err := GetConfigFromEnvVars(&cfg)
func GetConfigFromEnvVars[T any](dest *T) error {
	if err := load(dest); err != nil {
		return err
	}
	return validate(dest)
}

func load[T any](dest *T) error {
	val := reflect.ValueOf(dest).Elem()
	set := make(map[string]bool)
	if err := applyEnv(val, val.Type(), set); err != nil {
		return err
	}
	if err := applyDefaults(val, val.Type(), set); err != nil {
		var zero T
		*dest = zero
		return err
	}
	return nil
}

// GetConfig loads configuration from a YAML file first, then overlays environment
// variables. ${VAR} references inside the file are expanded before parsing.
// An empty filepath means environment only. With allowFileErrors, an
// unreadable or invalid file falls back to environment only.
func GetConfig[T any](dest *T, filepath string, allowFileErrors bool) error {
	if filepath == "" {
		return GetConfigFromEnvVars(dest)
	}
	data, err := os.ReadFile(filepath) //nolint:gosec // operator-supplied path
	if err != nil {
		if allowFileErrors {
			return GetConfigFromEnvVars(dest)
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), dest); err != nil {
		if allowFileErrors {
			return GetConfigFromEnvVars(dest)
		}
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return GetConfigFromEnvVars(dest)
}
