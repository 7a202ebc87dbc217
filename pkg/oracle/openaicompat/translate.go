package openaicompat

import (
	"encoding/json"
	"fmt"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/oracle"
)

const systemPrompt = "You operate an identity platform through a fixed set of tools. " +
	"Work toward the stated goal one tool call at a time, using only the tools provided. " +
	"React to each tool result before deciding the next step. " +
	"When the goal is satisfied, reply with a short plain-text summary instead of calling a tool."

// translateRequest converts a proposal request into a Chat Completions
// request. Each proposal turn becomes an assistant tool call and its
// observation becomes the matching tool result, so the backend sees the
// conversation the way the protocol expects.
func translateRequest(model string, req *oracle.Request) (*chatRequest, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: req.Goal},
	}

	for _, turn := range req.History {
		switch turn.Role {
		case api.RoleIntent:
			// The goal is already the opening user message.

		case api.RoleProposal:
			p, ok := turn.Proposal()
			if !ok {
				return nil, fmt.Errorf("turn %d: malformed proposal payload", turn.Seq)
			}
			if p.Final {
				messages = append(messages, chatMessage{Role: "assistant", Content: p.Summary})
				continue
			}
			args := "{}"
			if len(p.Arguments) > 0 {
				args = string(p.Arguments)
			}
			messages = append(messages, chatMessage{
				Role: "assistant",
				ToolCalls: []toolCall{{
					ID:   callID(turn.Seq),
					Type: "function",
					Function: functionCall{
						Name:      p.Capability,
						Arguments: args,
					},
				}},
			})

		case api.RoleObservation:
			obs, ok := turn.Observation()
			if !ok {
				return nil, fmt.Errorf("turn %d: malformed observation payload", turn.Seq)
			}
			content, err := json.Marshal(obs)
			if err != nil {
				return nil, fmt.Errorf("turn %d: encoding observation: %w", turn.Seq, err)
			}
			messages = append(messages, chatMessage{
				Role: "tool",
				// An observation always follows its proposal directly.
				ToolCallID: callID(turn.Seq - 1),
				Content:    string(content),
			})
		}
	}

	tools := make([]chatTool, 0, len(req.Capabilities))
	for _, d := range req.Capabilities {
		tools = append(tools, chatTool{
			Type: "function",
			Function: functionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.SchemaJSON(),
			},
		})
	}

	return &chatRequest{
		Model:      model,
		Messages:   messages,
		Tools:      tools,
		ToolChoice: "auto",
	}, nil
}

// translateResponse converts a Chat Completions response into a proposal:
// a tool call maps to a capability call, plain text to a goal-satisfied
// signal.
func translateResponse(resp *chatResponse) (*api.ProposalPayload, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no choices")
	}
	msg := resp.Choices[0].Message

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		return &api.ProposalPayload{
			Capability: call.Function.Name,
			Arguments:  json.RawMessage(call.Function.Arguments),
		}, nil
	}

	return &api.ProposalPayload{
		Final:   true,
		Summary: msg.Content,
	}, nil
}

func callID(seq int) string {
	return fmt.Sprintf("call_%d", seq)
}
