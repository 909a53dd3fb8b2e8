// Package transcript persists conversations as versioned JSON documents so
// that a later chat can continue them.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/relay"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
)

// Version is the document format written by [Marshal].
const Version = 1

// Transcript is a saved conversation.
type Transcript struct {
	ID           string
	Provider     string
	Model        string
	SystemPrompt string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Messages     []relay.Message
}

// New returns an empty transcript with a random ID.
func New(provider, model, systemPrompt string) Transcript {
	now := time.Now()
	return Transcript{
		ID:           uuid.NewString(),
		Provider:     provider,
		Model:        model,
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Append adds msgs to the conversation.
func (t *Transcript) Append(msgs ...relay.Message) {
	t.Messages = append(t.Messages, msgs...)
	t.UpdatedAt = time.Now()
}

// Usage sums the token usage of every assistant turn.
func (t Transcript) Usage() relay.Usage {
	var total relay.Usage
	for _, m := range t.Messages {
		if a, ok := m.(relay.AssistantMessage); ok {
			total = total.Add(a.Usage)
		}
	}
	return total
}

type document struct {
	Version      int       `json:"version"`
	ID           string    `json:"id"`
	Provider     string    `json:"provider,omitzero"`
	Model        string    `json:"model,omitzero"`
	SystemPrompt string    `json:"system_prompt,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Messages     []message `json:"messages"`
}

// Marshal encodes t as an indented JSON document.
func Marshal(t Transcript) ([]byte, error) {
	doc := document{
		Version:      Version,
		ID:           t.ID,
		Provider:     t.Provider,
		Model:        t.Model,
		SystemPrompt: t.SystemPrompt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		Messages:     make([]message, len(t.Messages)),
	}
	for i, msg := range t.Messages {
		m, err := encodeMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("transcript: message %d: %w", i, err)
		}
		doc.Messages[i] = m
	}
	return json.Marshal(doc, jsontext.WithIndent("  "))
}

// Unmarshal decodes a document written by [Marshal].
func Unmarshal(data []byte) (Transcript, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Transcript{}, fmt.Errorf("transcript: %w", err)
	}
	if doc.Version != Version {
		return Transcript{}, fmt.Errorf("transcript: unsupported version %d", doc.Version)
	}
	msgs := make([]relay.Message, len(doc.Messages))
	for i, m := range doc.Messages {
		msg, err := decodeMessage(m)
		if err != nil {
			return Transcript{}, fmt.Errorf("transcript: message %d: %w", i, err)
		}
		msgs[i] = msg
	}
	return Transcript{
		ID:           doc.ID,
		Provider:     doc.Provider,
		Model:        doc.Model,
		SystemPrompt: doc.SystemPrompt,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		Messages:     msgs,
	}, nil
}

// Save writes t to path, creating parent directories as needed. The file
// is replaced atomically.
func Save(path string, t Transcript) error {
	data, err := Marshal(t)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("transcript: create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("transcript: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("transcript: rename temp file: %w", err)
	}
	return nil
}

// Load reads the transcript at path. A missing file yields an error
// matching fs.ErrNotExist.
func Load(path string) (Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcript: %w", err)
	}
	return Unmarshal(data)
}
