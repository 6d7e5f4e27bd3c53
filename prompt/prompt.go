// Package prompt renders the instruction text sent to a model: the schema
// formatting rules and the chat or retrieval-grounded wrapper around a query.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

const formatInstructions = `The output should be formatted as a JSON instance that conforms to the JSON schema below.
As an example, for the schema {"properties": {"foo": {"title": "Foo", "description": "a list of strings", "type": "array", "items": {"type": "string"}}}, "required": ["foo"]}
the object {"foo": ["bar", "baz"]} is a well-formatted instance of the schema. The object {"properties": {"foo": ["bar", "baz"]}} is not well-formatted.
Here is the output schema:
` + "```" + `
%s
` + "```" + `
Return only the JSON output, do not wrap it in a "` + "```json```" + `" block.
`

// FormatInstructions embeds a rendered schema document in the fixed
// formatting rules.
func FormatInstructions(schemaDoc string) string {
	return fmt.Sprintf(formatInstructions, strings.TrimSpace(schemaDoc))
}

const (
	DefaultChatTemplate = `You are a polite chat bot, your task is to answer the user query concisely and with proper formatting.
This is the user query: {{.Query}}
IMPORTANT:
Follow these output formatting instructions strictly.
Format instructions: {{.Instructions}}`

	DefaultRAGTemplate = `You are a polite support agent. A customer asks you: "{{.Query}}". Provide a helpful response by referring to the context below.
{{range .Contexts}}<context>
{{.}}
</context>
{{end}}IMPORTANT:
1. Be polite and helpful.
2. The generated response must follow the instructions below.

<instruction>
{{.Instructions}}
</instruction>`
)

// Data is what a template is executed with.
type Data struct {
	Query        string
	Instructions string
	Contexts     []string
}

// Template holds the plain chat and the retrieval-grounded prompt layouts.
type Template struct {
	chat *template.Template
	rag  *template.Template
}

var ErrEmptyTemplate = errors.New("prompt: empty template")

// NewTemplate parses both layouts. Either may be empty to keep the default.
func NewTemplate(chat, rag string) (*Template, error) {
	if chat == "" {
		chat = DefaultChatTemplate
	}
	if rag == "" {
		rag = DefaultRAGTemplate
	}

	t := &Template{}
	var err error
	if t.chat, err = template.New("chat").Option("missingkey=error").Parse(chat); err != nil {
		return nil, fmt.Errorf("prompt: parse chat template: %w", err)
	}
	if t.rag, err = template.New("rag").Option("missingkey=error").Parse(rag); err != nil {
		return nil, fmt.Errorf("prompt: parse rag template: %w", err)
	}
	return t, nil
}

// Default is the template Compose uses.
var Default = mustTemplate(NewTemplate("", ""))

func mustTemplate(t *Template, err error) *Template {
	if err != nil {
		panic(err)
	}
	return t
}

// Compose renders the prompt. A nil contexts slice selects the chat layout;
// any non-nil slice, even an empty one, selects the retrieval layout.
func (t *Template) Compose(query, instructions string, contexts []string) (string, error) {
	tmpl := t.chat
	if contexts != nil {
		tmpl = t.rag
	}
	if tmpl == nil {
		return "", ErrEmptyTemplate
	}

	var sb strings.Builder
	err := tmpl.Execute(&sb, Data{
		Query:        query,
		Instructions: instructions,
		Contexts:     contexts,
	})
	if err != nil {
		return "", fmt.Errorf("prompt: render %s: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}

// Compose renders the prompt with the default template.
func Compose(query, instructions string, contexts []string) string {
	p, err := Default.Compose(query, instructions, contexts)
	if err != nil {
		// the default layouts only reference fields of Data
		panic(err)
	}
	return p
}
