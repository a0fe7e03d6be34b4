package configcascade

import (
	"fmt"
	"reflect"
	"strings"
)

// Source labels recorded in Resolved.Sources, in ascending tier priority.
const (
	SourceHardcoded       = "hardcoded"
	SourceAdmin           = "admin"
	SourcePersonality     = "personality"
	SourceChannel         = "channel"
	SourceUserDefault     = "user-default"
	SourceUserPersonality = "user-personality"
)

// Overrides is one tier's partial configuration. A nil field means the tier
// has no opinion and the next-lower tier's value shows through.
type Overrides struct {
	MaxMessages    *int     `json:"maxMessages,omitempty"`
	MaxTokens      *int     `json:"maxTokens,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	TopP           *float64 `json:"topP,omitempty"`
	Model          *string  `json:"model,omitempty"`
	SystemPrompt   *string  `json:"systemPrompt,omitempty"`
	MemoryEnabled  *bool    `json:"memoryEnabled,omitempty"`
	ResponseChance *float64 `json:"responseChance,omitempty"`
}

// IsZero reports whether the tier overrides nothing.
func (o Overrides) IsZero() bool {
	return o == Overrides{}
}

// Resolved is a fully-populated configuration: every recognized field has a
// concrete value, and Sources records (by json field name) which tier last
// wrote it.
type Resolved struct {
	MaxMessages    int     `json:"maxMessages"`
	MaxTokens      int     `json:"maxTokens"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"topP"`
	Model          string  `json:"model"`
	SystemPrompt   string  `json:"systemPrompt"`
	MemoryEnabled  bool    `json:"memoryEnabled"`
	ResponseChance float64 `json:"responseChance"`

	Sources map[string]string `json:"sources"`
}

// FieldNames lists the recognized override fields in declaration order,
// derived from the Overrides struct itself so the merge loop and the schema
// can never drift apart.
var FieldNames []string

type fieldInfo struct {
	goName   string
	jsonName string
}

var overrideFields []fieldInfo

func init() {
	ot := reflect.TypeOf(Overrides{})
	rt := reflect.TypeOf(Resolved{})
	for i := 0; i < ot.NumField(); i++ {
		f := ot.Field(i)
		jsonName := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		rf, ok := rt.FieldByName(f.Name)
		if !ok || rf.Type != f.Type.Elem() {
			panic(fmt.Sprintf("configcascade: Resolved is missing override field %s", f.Name))
		}
		overrideFields = append(overrideFields, fieldInfo{goName: f.Name, jsonName: jsonName})
		FieldNames = append(FieldNames, jsonName)
	}
}

// Defaults returns the hardcoded baseline tier: sane values for a personality
// bot with no stored configuration at all.
func Defaults() *Resolved {
	r := &Resolved{
		MaxMessages:    50,
		MaxTokens:      2048,
		Temperature:    1.0,
		TopP:           1.0,
		Model:          "default",
		SystemPrompt:   "",
		MemoryEnabled:  true,
		ResponseChance: 1.0,
		Sources:        make(map[string]string, len(FieldNames)),
	}
	for _, name := range FieldNames {
		r.Sources[name] = SourceHardcoded
	}
	return r
}

// apply overwrites value and source for every field the tier defines. Merge
// order is the caller's responsibility: tiers must be applied lowest
// priority first.
func (r *Resolved) apply(o Overrides, source string) {
	ov := reflect.ValueOf(o)
	rv := reflect.ValueOf(r).Elem()
	for i, f := range overrideFields {
		fv := ov.Field(i)
		if fv.IsNil() {
			continue
		}
		rv.FieldByName(f.goName).Set(fv.Elem())
		r.Sources[f.jsonName] = source
	}
}
