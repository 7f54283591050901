package relay

import (
	"strings"

	"github.com/modalchat/server/domain"
)

// Shaper adapts the outgoing request payload to a model family's quirks.
// The system instruction placement differs between families, so shaping is
// keyed by model identifier instead of scattered conditionals; supporting a
// new quirk means registering a prefix, not editing the controller.
type Shaper interface {
	Shape(system string, messages []ChatMessage) []ChatMessage
}

// inlineSystemPrefixes lists model families that reject the system role.
// Their instruction is folded into the last user message instead.
var inlineSystemPrefixes = []string{
	"google/gemma",
}

// ShaperFor returns the request shaper for a model identifier.
func ShaperFor(model string) Shaper {
	for _, prefix := range inlineSystemPrefixes {
		if strings.HasPrefix(model, prefix) {
			return inlineSystemShaper{}
		}
	}
	return systemFirstShaper{}
}

// systemFirstShaper prepends the system instruction as its own message.
type systemFirstShaper struct{}

func (systemFirstShaper) Shape(system string, messages []ChatMessage) []ChatMessage {
	if system == "" {
		return messages
	}
	shaped := make([]ChatMessage, 0, len(messages)+1)
	shaped = append(shaped, ChatMessage{Role: string(domain.RoleSystem), Content: system})
	return append(shaped, messages...)
}

// inlineSystemShaper folds the system instruction into the last user
// message for models that reject the system role.
type inlineSystemShaper struct{}

func (inlineSystemShaper) Shape(system string, messages []ChatMessage) []ChatMessage {
	if system == "" {
		return messages
	}

	shaped := make([]ChatMessage, len(messages))
	copy(shaped, messages)

	for i := len(shaped) - 1; i >= 0; i-- {
		if shaped[i].Role != string(domain.RoleUser) {
			continue
		}
		switch content := shaped[i].Content.(type) {
		case string:
			shaped[i].Content = system + "\n\n" + content
		case []ContentPart:
			parts := make([]ContentPart, 0, len(content)+1)
			parts = append(parts, TextPart(system))
			parts = append(parts, content...)
			shaped[i].Content = parts
		}
		return shaped
	}

	// No user message to fold into; deliver the instruction as one
	return append([]ChatMessage{{Role: string(domain.RoleUser), Content: system}}, shaped...)
}
