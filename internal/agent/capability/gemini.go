package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/agent/prompts"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
)

// GeminiConfig holds the configuration for the Gemini-backed capabilities.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Classifier model.ClassifierModelConfig
	Generator  model.GeneratorModelConfig
	Persona    model.PersonaConfig
}

// Gemini implements the classifier, summarizer, preference-extractor and
// reply-generator capabilities on top of two Gemini chat models: a small,
// cold model for classification/extraction and a larger one for replies.
type Gemini struct {
	classifier *gemini.ChatModel
	generator  *gemini.ChatModel
	persona    model.PersonaConfig

	classifyTimeout time.Duration
	generateTimeout time.Duration
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	classifierModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Classifier.Model,
		Temperature: &cfg.Classifier.Temperature,
		MaxTokens:   &cfg.Classifier.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	generatorModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Generator.Model,
		Temperature: &cfg.Generator.Temperature,
		MaxTokens:   &cfg.Generator.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating generator model: %w", err)
	}

	if err := generatorModel.BindTools(agentToolInfos()); err != nil {
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}

	classifyTimeout, err := time.ParseDuration(cfg.Classifier.Timeout)
	if err != nil {
		classifyTimeout = 5 * time.Second
	}
	generateTimeout, err := time.ParseDuration(cfg.Generator.Timeout)
	if err != nil {
		generateTimeout = 30 * time.Second
	}

	return &Gemini{
		classifier:      classifierModel,
		generator:       generatorModel,
		persona:         cfg.Persona,
		classifyTimeout: classifyTimeout,
		generateTimeout: generateTimeout,
	}, nil
}

// agentToolInfos declares the ledger operations the generator may request.
func agentToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: model.ActionSearchProducts,
			Desc: "Search the home-goods catalog. Returns product id, name, price and availability.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: "string", Desc: "Search keywords, Spanish or English", Required: true},
			}),
		},
		{
			Name: model.ActionAddToCart,
			Desc: "Reserve a product for the customer's cart. The hold expires if not confirmed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"product_id": {Type: "string", Desc: "Catalog product id"},
				"query":      {Type: "string", Desc: "Product name when the id is unknown"},
				"quantity":   {Type: "number", Desc: "Units to add (default 1)"},
			}),
		},
		{
			Name: model.ActionRemoveFromCart,
			Desc: "Remove units of a product from the cart, releasing the reservation.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"product_id": {Type: "string", Desc: "Catalog product id"},
				"query":      {Type: "string", Desc: "Product name when the id is unknown"},
				"quantity":   {Type: "number", Desc: "Units to remove; omit to remove all"},
			}),
		},
		{
			Name:        model.ActionConfirmOrder,
			Desc:        "Confirm the current cart as an order. All items are committed atomically.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		{
			Name: model.ActionLookupOrder,
			Desc: "Look up a confirmed order by its ORD- number.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_number": {Type: "string", Desc: "Order number, e.g. ORD-20250101-AB12CD34", Required: true},
			}),
		},
		{
			Name: model.ActionInitiateReturn,
			Desc: "Open a return case for a confirmed order.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_number": {Type: "string", Desc: "Order number", Required: true},
				"reason":       {Type: "string", Desc: "Customer's reason for the return"},
			}),
		},
	}
}

// Classify implements the LLM tier of the safety classifier.
func (g *Gemini) Classify(ctx context.Context, text string) (*model.SafetyVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, g.classifyTimeout)
	defer cancel()

	out, err := g.classifier.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompts.RenderSafety(text)),
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return parseVerdict(out.Content)
}

func parseVerdict(content string) (*model.SafetyVerdict, error) {
	line := strings.TrimSpace(content)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	label, reason, _ := strings.Cut(line, "|")
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "SAFE":
		return &model.SafetyVerdict{Label: model.ClassificationSafe, Reason: strings.TrimSpace(reason)}, nil
	case "UNSAFE":
		return &model.SafetyVerdict{Label: model.ClassificationUnsafe, Reason: strings.TrimSpace(reason)}, nil
	}
	return nil, fmt.Errorf("unparseable verdict: %q", line)
}

// Summarize folds messages into a rolling summary.
func (g *Gemini) Summarize(ctx context.Context, messages []model.Message, existing string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.generateTimeout)
	defer cancel()

	out, err := g.classifier.Generate(ctx, []*schema.Message{
		schema.SystemMessage("Eres un asistente que resume conversaciones de ventas manteniendo información crítica."),
		schema.UserMessage(prompts.RenderSummary(messages, existing)),
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out.Content), nil
}

// Extract asks the model for structured preferences. Output that cannot be
// parsed as the expected JSON shape is reported as an error; the caller
// discards it silently.
func (g *Gemini) Extract(ctx context.Context, messages []model.Message) (*model.PreferenceExtraction, error) {
	ctx, cancel := context.WithTimeout(ctx, g.classifyTimeout)
	defer cancel()

	out, err := g.classifier.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompts.RenderPreferences(messages)),
	})
	if err != nil {
		return nil, fmt.Errorf("extract preferences: %w", err)
	}

	raw := strings.TrimSpace(out.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var extraction model.PreferenceExtraction
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &extraction); err != nil {
		return nil, fmt.Errorf("unparseable extraction output: %w", err)
	}
	return &extraction, nil
}

// GenerateReply produces the agent's reply and any requested ledger actions.
func (g *Gemini) GenerateReply(ctx context.Context, req *model.ReplyRequest) (*model.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, g.generateTimeout)
	defer cancel()

	msgs := []*schema.Message{
		schema.SystemMessage(prompts.RenderPersona(g.persona, req)),
	}
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case model.RoleAssistant, model.RoleSupervisor:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		}
	}

	out, err := g.generator.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	reply := &model.Reply{Content: strings.TrimSpace(out.Content)}
	for _, tc := range out.ToolCalls {
		name := strings.TrimSpace(tc.Function.Name)
		if name == "" {
			logx.Warn().Str("arguments", tc.Function.Arguments).Msg("ignoring tool call without a name")
			continue
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				logx.Warn().Err(err).Str("tool", name).Msg("ignoring tool call with malformed arguments")
				continue
			}
		}
		reply.Actions = append(reply.Actions, model.AgentAction{Name: name, Args: args})
	}
	return reply, nil
}

var (
	_ model.Classifier          = (*Gemini)(nil)
	_ model.Summarizer          = (*Gemini)(nil)
	_ model.PreferenceExtractor = (*Gemini)(nil)
	_ model.ReplyGenerator      = (*Gemini)(nil)
)
