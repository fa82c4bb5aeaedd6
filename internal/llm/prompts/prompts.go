// Package prompts builds the question-generation prompts from embedded
// templates.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/abdullah-az/ai-exam/internal/model"
)

//go:embed templates/*.txt
var Files embed.FS

var (
	sourceTextRegex         = regexp.MustCompile(`(?i)</?\s*source-text\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxSourceRunes bounds the material pasted into a generation prompt.
const maxSourceRunes = 20000

// Kind selects a generation prompt template.
type Kind string

const (
	// KindFromExamples generates questions styled after existing ones.
	KindFromExamples Kind = "from_examples"
	// KindFromText generates questions from supplied source material.
	KindFromText Kind = "from_text"
)

// GenerationData holds template data for generation prompts.
type GenerationData struct {
	Specialization string
	Count          int
	Examples       string
	SourceText     string
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Kind]*template.Template
)

// Load parses the prompt templates from the given filesystem. It uses
// sync.Once so templates are loaded only once; later calls return the first
// result.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[Kind]*template.Template)
		for _, k := range []Kind{KindFromExamples, KindFromText} {
			name := "templates/generate_" + string(k) + ".txt"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + name + ": " + err.Error())
				return
			}
			tmpl, err := template.New(string(k)).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + name + ": " + err.Error())
				return
			}
			templates[k] = tmpl
		}
	})
	return loadErr
}

// BuildGenerationPrompt renders the prompt of the given kind. Load(Files) is
// applied automatically when no filesystem was loaded yet.
func BuildGenerationPrompt(kind Kind, data GenerationData) (string, error) {
	if err := Load(Files); err != nil {
		return "", err
	}
	tmpl, ok := templates[kind]
	if !ok {
		return "", errors.New("invalid prompt kind: " + string(kind))
	}
	data.SourceText = SanitizeSource(data.SourceText)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatExamples renders existing questions as the JSON the model is asked to
// imitate. Correctness flags and internal ids are stripped.
func FormatExamples(questions []model.Question) (string, error) {
	type choice struct {
		Text string `json:"text"`
	}
	type example struct {
		Text       string   `json:"text"`
		Choices    []choice `json:"choices"`
		CourseYear int      `json:"course_year"`
		Mark       int      `json:"mark"`
	}
	var examples []example
	for _, q := range questions {
		e := example{Text: q.Text, CourseYear: q.CourseYear, Mark: q.Mark}
		for _, c := range q.Choices {
			e.Choices = append(e.Choices, choice{Text: c.Text})
		}
		examples = append(examples, e)
	}
	out, err := json.MarshalIndent(examples, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format examples: %w", err)
	}
	return string(out), nil
}

// SanitizeSource strips prompt-injection markers from untrusted source
// material and truncates it to a workable length.
func SanitizeSource(text string) string {
	text = sourceTextRegex.ReplaceAllString(text, "")
	text = systemInstructionsRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) > maxSourceRunes {
		runes := []rune(text)
		text = string(runes[:maxSourceRunes]) + "\n\n[Source truncated due to length]"
	}
	return text
}
