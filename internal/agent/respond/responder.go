// Package respond produces the companion's streamed replies. The agent
// server consumes a Responder without knowing whether a language model or a
// scripted stand-in is behind it.
package respond

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sync"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/nova-companion/nova-go/internal/config"
	"github.com/nova-companion/nova-go/internal/model/persona"
)

// Responder streams one reply per user turn. Record persists a completed
// turn into the responder's conversational memory.
type Responder interface {
	Stream(ctx context.Context, userText string) (*schema.StreamReader[*schema.Message], error)
	Record(userText, reply string)
}

// historyLimit 保留最近 10 轮对话（user + assistant 各一条）。
const historyLimit = 20

var hanPattern = regexp.MustCompile(`\p{Han}`)

// languageInstruction locks the reply language to the user's, mirroring
// whichever language the current turn is written in.
func languageInstruction(userText string) string {
	lang := "English"
	if hanPattern.MatchString(userText) {
		lang = "Chinese"
	}
	return fmt.Sprintf("The user is speaking %s. Respond ONLY in %s.", lang, lang)
}

// ArkResponder generates replies with an Ark chat model behind an eino
// prompt chain.
type ArkResponder struct {
	persona persona.Persona
	chain   compose.Runnable[map[string]any, *schema.Message]

	mu      sync.Mutex
	history []*schema.Message
}

// NewArkResponder compiles the reply chain for the given persona.
func NewArkResponder(ctx context.Context, p persona.Persona, cfg config.ModelConfig) (*ArkResponder, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.SystemMessage("{language}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile reply chain: %w", err)
	}

	return &ArkResponder{persona: p, chain: runnable}, nil
}

// Stream runs the chain for one user turn.
func (r *ArkResponder) Stream(ctx context.Context, userText string) (*schema.StreamReader[*schema.Message], error) {
	input := map[string]any{
		"system":   r.persona.SystemPrompt,
		"language": languageInstruction(userText),
		"history":  r.snapshotHistory(),
		"query":    userText,
	}

	stream, err := r.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("stream reply chain: %w", err)
	}
	return stream, nil
}

// Record appends the completed turn, trimming to the history window.
func (r *ArkResponder) Record(userText, reply string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history,
		schema.UserMessage(userText),
		schema.AssistantMessage(reply, nil),
	)
	if len(r.history) > historyLimit {
		r.history = r.history[len(r.history)-historyLimit:]
	}
	log.Printf("[respond] recorded turn, history=%d messages", len(r.history))
}

func (r *ArkResponder) snapshotHistory() []*schema.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*schema.Message(nil), r.history...)
}

// ScriptedResponder cycles through canned replies, streamed in small
// chunks. It keeps development and tests independent of model credentials.
type ScriptedResponder struct {
	Replies   []string
	ChunkSize int

	mu   sync.Mutex
	next int
}

// DefaultScript returns companion-flavored canned replies with inline
// expression markers.
func DefaultScript() []string {
	return []string{
		"看到你真开心！[emo:happy] 今天想聊点什么呢？",
		"哇，这听起来太有趣了！[emo:surprised] 再多讲一点嘛。",
		"嘿嘿，这是我们之间的小秘密哦。[emo:wink]",
		"I'm so glad to see you! [emo:happy] How was your day?",
	}
}

func (r *ScriptedResponder) Stream(ctx context.Context, userText string) (*schema.StreamReader[*schema.Message], error) {
	replies := r.Replies
	if len(replies) == 0 {
		replies = DefaultScript()
	}

	r.mu.Lock()
	reply := replies[r.next%len(replies)]
	r.next++
	r.mu.Unlock()

	size := r.ChunkSize
	if size <= 0 {
		size = 8
	}

	runes := []rune(reply)
	var chunks []*schema.Message
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, schema.AssistantMessage(string(runes[start:end]), nil))
	}
	if len(chunks) == 0 {
		chunks = append(chunks, schema.AssistantMessage("", nil))
	}

	return schema.StreamReaderFromArray(chunks), nil
}

// Record is a no-op: the script does not depend on conversation state.
func (r *ScriptedResponder) Record(userText, reply string) {}
