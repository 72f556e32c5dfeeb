// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_conversation_openai implements provider.ConversationLLM
// against OpenAI's Chat Completions API, grounded on
// goadesign-goa-ai/features/model/openai/client.go's ChatClient seam and
// generalized from that adapter's generic model.Request/Response shape to
// the turn-by-turn conversation context audiobridge.Session keeps.
package internal_conversation_openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rapidaai/voicecampaign/internal/logging"
	"github.com/rapidaai/voicecampaign/internal/provider"
)

// ChatClient captures the subset of the go-openai client this adapter
// calls, so tests can substitute a fake without a live API key.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const defaultSystemPrompt = "You are a helpful voice assistant on a phone call. Keep replies short and conversational."

// ConversationLLM implements provider.ConversationLLM via OpenAI Chat
// Completions (spec §4.2's LLM.generateConversationalResponse).
type ConversationLLM struct {
	chat   ChatClient
	model  string
	logger logging.Logger
}

// New builds an OpenAI-backed ConversationLLM from an API key.
func New(apiKey, model string, logger logging.Logger) (*ConversationLLM, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("internal_conversation_openai: api key required")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.GPT4oMini
	}
	return &ConversationLLM{chat: openai.NewClient(apiKey), model: model, logger: logger}, nil
}

// GenerateConversationalResponse turns the running transcript into a reply,
// sending the full rolling context (already truncated to 20 turns by the
// session) as chat history ahead of the latest user turn.
func (c *ConversationLLM) GenerateConversationalResponse(ctx context.Context, text, voiceAgentID string, history []provider.ConversationTurn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: defaultSystemPrompt,
	})
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    roleFor(turn.Role),
			Content: turn.Content,
		})
	}
	if len(history) == 0 || history[len(history)-1].Content != text {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: text,
		})
	}

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("internal_conversation_openai: chat completion for voiceAgent %s: %w", voiceAgentID, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("internal_conversation_openai: empty completion for voiceAgent %s", voiceAgentID)
	}
	return resp.Choices[0].Message.Content, nil
}

func roleFor(role string) string {
	if role == "assistant" {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}
