// Package responder runs one conversational turn through the agent bound
// to the conversation. Each turn is stateless: a fresh session is created,
// fed the transcript tail, and discarded.
package responder

import (
	"context"
	"fmt"
	"strings"

	agentrepo "legalintake_backend/internal/agents/repository"
	"legalintake_backend/internal/telemetry"
	"legalintake_backend/platform/ai/moonshot"
	"legalintake_backend/platform/config"
	"legalintake_backend/platform/logger"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const (
	appName        = "intake_responder"
	transcriptTail = 20
)

// TranscriptEntry is one line of the prompt context.
type TranscriptEntry struct {
	Role    string
	Content string
}

// Responder produces agent replies for inbound visitor messages.
type Responder struct {
	apiKey       string
	defaultModel string
	executor     *telemetry.Executor
	log          *logger.Logger
}

// New builds the responder. Returns nil when no AI key is configured;
// a nil Responder declines every turn.
func New(cfg config.AIConfig, executor *telemetry.Executor, log *logger.Logger) *Responder {
	if !cfg.IsAIEnabled() {
		return nil
	}
	return &Responder{
		apiKey:       cfg.GetMoonshotAPIKey(),
		defaultModel: cfg.GetMoonshotModel(),
		executor:     executor,
		log:          log,
	}
}

// Enabled reports whether the responder can produce replies.
func (r *Responder) Enabled() bool {
	return r != nil
}

// Reply runs one turn for the given agent over the transcript tail and
// returns the reply text. An empty reply means the model chose silence.
func (r *Responder) Reply(ctx context.Context, ag *agentrepo.Agent, conversationID uuid.UUID, transcript []TranscriptEntry) (string, error) {
	if r == nil {
		return "", nil
	}

	call := telemetry.Call{
		OwnerID:   ag.OwnerID,
		Source:    "moonshot",
		AgentID:   &ag.ID,
		ModelName: r.modelFor(ag),
		Metadata:  map[string]any{"conversation_id": conversationID.String()},
	}

	result, err := r.executor.Execute(ctx, call, func(ctx context.Context) (telemetry.Result, error) {
		reply, err := r.runTurn(ctx, ag, conversationID, transcript)
		return telemetry.Result{Value: reply}, err
	})
	if err != nil {
		return "", err
	}

	reply, _ := result.Value.(string)
	return strings.TrimSpace(reply), nil
}

func (r *Responder) runTurn(ctx context.Context, ag *agentrepo.Agent, conversationID uuid.UUID, transcript []TranscriptEntry) (string, error) {
	kimi := moonshot.NewModel(moonshot.Config{
		APIKey: r.apiKey,
		Model:  r.modelFor(ag),
	})

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "IntakeResponder",
		Model:       kimi,
		Description: "Replies to visitors on behalf of the law firm.",
		Instruction: ag.Instruction,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create responder agent: %w", err)
	}

	sessionService := session.InMemoryService()
	run, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create responder runner: %w", err)
	}

	userID := "conversation-" + conversationID.String()
	sessionID := uuid.New().String()
	_, err = sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	userMessage := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{Text: renderTranscript(transcript)},
		},
	}

	var output strings.Builder
	for event, err := range run.Run(ctx, userID, sessionID, userMessage, agent.RunConfig{StreamingMode: agent.StreamingModeNone}) {
		if err != nil {
			return "", err
		}
		if event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			output.WriteString(part.Text)
		}
	}

	return output.String(), nil
}

func (r *Responder) modelFor(ag *agentrepo.Agent) string {
	if ag.ModelName != "" {
		return ag.ModelName
	}
	return r.defaultModel
}

func renderTranscript(transcript []TranscriptEntry) string {
	if len(transcript) > transcriptTail {
		transcript = transcript[len(transcript)-transcriptTail:]
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, entry := range transcript {
		label := "Visitor"
		if entry.Role == "assistant" {
			label = "You"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, entry.Content)
	}
	b.WriteString("\nWrite your next reply to the visitor. Reply with the message text only.")
	return b.String()
}
