package orchestrator

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/user/urbanflow/internal/types"
	"github.com/user/urbanflow/pkg/agent"
)

// defaultTranscriptBudget bounds the token count of history sent with each
// chat call.
const defaultTranscriptBudget = 8000

// TranscriptBuilder translates the message log into the backend transcript:
// text messages only, mapped 1:1 to turns, trimmed oldest-first to a token
// budget. Status and form messages never reach the backend.
type TranscriptBuilder struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
}

// NewTranscriptBuilder creates a builder with the given token budget. When
// the tokenizer cannot be initialised (offline environments), token counts
// fall back to a bytes/4 estimate.
func NewTranscriptBuilder(maxTokens int) *TranscriptBuilder {
	if maxTokens <= 0 {
		maxTokens = defaultTranscriptBudget
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &TranscriptBuilder{tokenizer: enc, maxTokens: maxTokens}
}

func (b *TranscriptBuilder) countTokens(text string) int {
	if b.tokenizer == nil {
		return len(text)/4 + 1
	}
	return len(b.tokenizer.Encode(text, nil, nil))
}

// Build converts messages into transcript turns, keeping the newest turns
// that fit the budget. The first turn kept is never dropped mid-exchange:
// trimming only removes whole turns from the oldest end.
func (b *TranscriptBuilder) Build(messages []types.Message) []agent.Turn {
	turns := make([]agent.Turn, 0, len(messages))
	for _, m := range messages {
		if m.Kind != types.MessageText {
			continue
		}
		role := agent.RoleUser
		if m.Sender == types.SenderAgent {
			role = agent.RoleAgent
		}
		turns = append(turns, agent.Turn{
			Role:      role,
			Content:   m.Text,
			Timestamp: m.At,
		})
	}

	used := 0
	keepFrom := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		cost := b.countTokens(turns[i].Content)
		if used+cost > b.maxTokens {
			break
		}
		used += cost
		keepFrom = i
	}
	return turns[keepFrom:]
}
