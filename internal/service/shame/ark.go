package shame

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ArkTextGenerator 通过 eino chain 调用方舟模型生成文案。
type ArkTextGenerator struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkTextGenerator 编译 prompt → chat model 链。
func NewArkTextGenerator(ctx context.Context, chatModel model.BaseChatModel) (*ArkTextGenerator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{instruction}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shame chain: %w", err)
	}
	return &ArkTextGenerator{chain: runnable}, nil
}

// GenerateText 实现 TextGenerator。
func (g *ArkTextGenerator) GenerateText(ctx context.Context) (string, error) {
	msg, err := g.chain.Invoke(ctx, map[string]any{
		"instruction": SystemInstruction,
		"query":       UserPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run shame chain: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return msg.Content, nil
}
