// Package interaction implements the LLMInteraction state machine (spec
// §4.1): turn/statement accounting, token-usage aggregation, message
// append semantics including tool-result coalescing, and parameter
// resolution against the model registry.
package interaction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/internal/modelregistry"
	"github.com/coredesk/llmcore/internal/providers"
	"github.com/coredesk/llmcore/internal/transport"
	"github.com/coredesk/llmcore/pkg/models"
)

// Kind mirrors modelregistry.InteractionKind; it is immutable once an
// Interaction is constructed (spec §3).
type Kind = modelregistry.InteractionKind

const (
	KindChat         = modelregistry.InteractionChat
	KindConversation = modelregistry.InteractionConversation
	KindBase         = modelregistry.InteractionBase
)

// Callbacks supplies the collaborators an Interaction needs to assemble a
// request and dispatch it. init fails fatally if any mandatory field is
// nil (spec §4.1 "fails fatally if the callback set is incomplete").
type Callbacks struct {
	// Messages returns the current message log to send. Mandatory.
	Messages func() []models.Message

	// System returns the active system prompt. Mandatory.
	System func() string

	// Tools returns the tools available to the model. May be nil (no
	// tools offered).
	Tools func() []models.Tool

	// ProviderForModel selects a provider name for model, used only in
	// "local" mode; in authoritative mode the core always routes through
	// the authoritative proxy provider regardless of this callback.
	ProviderForModel func(model string) string
}

func (c Callbacks) validate() error {
	if c.Messages == nil {
		return llmerr.New(llmerr.KindInteractionInit, "interaction: Callbacks.Messages is required")
	}
	if c.System == nil {
		return llmerr.New(llmerr.KindInteractionInit, "interaction: Callbacks.System is required")
	}
	return nil
}

// RoutingMode selects how init picks a provider for a model (spec §4.1).
type RoutingMode string

const (
	// RoutingLocal selects the provider via Callbacks.ProviderForModel.
	RoutingLocal RoutingMode = "local"
	// RoutingAuthoritative always routes through the authoritative proxy
	// provider, regardless of model.
	RoutingAuthoritative RoutingMode = "authoritative"
)

const authoritativeProviderName = "authoritative"

// Objectives tracks the interaction's running summary (spec §3).
// len(PerStatement) must never exceed StatementCount.
type Objectives struct {
	Overall      *string
	PerStatement []string
	Timestamp    time.Time
}

// ResourceMetrics tracks the three resource sets from spec §3. Modified
// must always be a subset of Accessed; MarkModified enforces this.
type ResourceMetrics struct {
	Accessed map[string]bool
	Modified map[string]bool
	Active   map[string]bool
}

func newResourceMetrics() ResourceMetrics {
	return ResourceMetrics{
		Accessed: map[string]bool{},
		Modified: map[string]bool{},
		Active:   map[string]bool{},
	}
}

// LastUse records the outcome and time of the most recent invocation of a
// tool (spec §3).
type LastUse struct {
	Success   bool
	Timestamp time.Time
}

// ToolStat accumulates invocation counts for one tool name. Invariant:
// Success + Failure == Count.
type ToolStat struct {
	Count   int
	Success int
	Failure int
	LastUse LastUse
}

// Interaction is one multi-turn exchange between a user and the LLM
// orchestration core (spec §3, §4.1). All mutating methods are safe for
// concurrent use.
type Interaction struct {
	ID              string
	ParentID        string
	CollaborationID string
	Type            Kind

	Model            string
	MaxTokens        int
	Temperature      float64
	ExtendedThinking providers.ExtendedThinking

	providerName string
	callbacks    Callbacks

	core      *transport.Core
	sink      PersistenceSink
	log       *slog.Logger
	userPrefs modelregistry.ProviderPreferences

	mu   sync.Mutex
	acct accountingState

	messages  []models.Message
	objectives Objectives
	resources  ResourceMetrics
	toolStats  map[string]*ToolStat
}

// PersistenceSink is the append-only sink an Interaction writes
// token-usage records, system-prompt dumps, and snapshots to (spec §4.8).
// It is an interface only — the store is an external collaborator.
type PersistenceSink interface {
	AppendTokenUsage(ctx context.Context, interactionID string, record TokenUsageRecord) error
	AppendSystemPrompt(ctx context.Context, interactionID string, prompt string) error
	AppendSnapshot(ctx context.Context, interactionID string, snapshot Snapshot) error
}

// Snapshot is an opaque, append-only record of interaction state at a
// point in time, handed to PersistenceSink.AppendSnapshot.
type Snapshot struct {
	InteractionID   string
	Timestamp       time.Time
	StatementCount  int
	TurnCount       int
	InteractionUsage models.TokenUsage
	MessageCount    int
}

// NoopSink discards everything written to it. Useful as a default in
// tests and for interactions that don't need durable accounting.
type NoopSink struct{}

func (NoopSink) AppendTokenUsage(context.Context, string, TokenUsageRecord) error { return nil }
func (NoopSink) AppendSystemPrompt(context.Context, string, string) error         { return nil }
func (NoopSink) AppendSnapshot(context.Context, string, Snapshot) error           { return nil }

// New constructs an Interaction bound to collaborationID and an optional
// parentID (sub-agent relationship), selecting a provider for model per
// mode. It fails fatally (returns an error) if callbacks is incomplete.
func New(
	id, collaborationID, parentID string,
	kind Kind,
	model string,
	mode RoutingMode,
	callbacks Callbacks,
	core *transport.Core,
	sink PersistenceSink,
	log *slog.Logger,
) (*Interaction, error) {
	if err := callbacks.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = NoopSink{}
	}

	providerName := authoritativeProviderName
	if mode == RoutingLocal {
		if callbacks.ProviderForModel == nil {
			return nil, llmerr.New(llmerr.KindInteractionInit, "interaction: RoutingLocal requires Callbacks.ProviderForModel")
		}
		providerName = callbacks.ProviderForModel(model)
	}

	resolved := modelregistry.ResolveParams(model, kind, modelregistry.ProviderPreferences{}, modelregistry.ProviderPreferences{})

	return &Interaction{
		ID:              id,
		ParentID:        parentID,
		CollaborationID: collaborationID,
		Type:            kind,
		Model:           model,
		MaxTokens:       resolved.MaxTokens,
		Temperature:     resolved.Temperature,
		ExtendedThinking: providers.ExtendedThinking{Enabled: resolved.ExtendedThinking},
		providerName:    providerName,
		callbacks:       callbacks,
		core:            core,
		sink:            sink,
		log:             log,
		resources:       newResourceMetrics(),
		toolStats:       map[string]*ToolStat{},
	}, nil
}

// ResolveParams re-resolves (maxTokens, temperature, extendedThinking) for
// a single call, honoring the priority chain from spec §4.1: explicit
// per-call values win over i.userPrefs, which win over the interaction-type
// default, which wins over the model's capability default.
func (i *Interaction) ResolveParams(explicit modelregistry.ProviderPreferences) modelregistry.ResolvedParams {
	return modelregistry.ResolveParams(i.Model, i.Type, explicit, i.userPrefs)
}

// SetUserPreferences installs the active user's provider preferences,
// consulted by ResolveParams and by Speak's request assembly.
func (i *Interaction) SetUserPreferences(prefs modelregistry.ProviderPreferences) {
	i.userPrefs = prefs
}

// requestCallbacks adapts the interaction's own state into
// transport.RequestCallbacks for prepareMessageRequest.
func (i *Interaction) requestCallbacks(explicit modelregistry.ProviderPreferences) transport.RequestCallbacks {
	resolved := i.ResolveParams(explicit)
	return transport.RequestCallbacks{
		Messages: func() []models.Message { return i.callbacks.Messages() },
		System:   i.callbacks.System,
		Tools: func() []models.Tool {
			if i.callbacks.Tools == nil {
				return nil
			}
			return i.callbacks.Tools()
		},
		Model:       func() string { return i.Model },
		MaxTokens:   func() (int, bool) { return resolved.MaxTokens, resolved.MaxTokens > 0 },
		Temperature: func() (float64, bool) { return resolved.Temperature, true },
		ExtendedThinking: func() (providers.ExtendedThinking, bool) {
			return providers.ExtendedThinking{Enabled: resolved.ExtendedThinking, BudgetTokens: i.ExtendedThinking.BudgetTokens}, true
		},
	}
}

// Speak assembles a request from the interaction's current state, runs it
// through speakWithRetry, appends the resulting assistant message, and
// updates accounting. LLM errors from transport are never swallowed —
// they propagate to the caller (spec §4.1 "Failure semantics").
func (i *Interaction) Speak(
	ctx context.Context,
	explicit modelregistry.ProviderPreferences,
	tools transport.ToolRegistry,
	extraValidator transport.ResponseValidator,
	modify providers.OptionsModifier,
) (*models.ProviderResponse, error) {
	req := transport.PrepareMessageRequest(i.requestCallbacks(explicit))

	resp, err := i.core.SpeakWithRetry(ctx, i.providerName, req, i.ID, tools, extraValidator, modify)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	messageID := i.appendAssistantLocked(resp.AnswerContent, resp)
	i.updateTotalsLocked(ctx, messageID, resp.Usage)
	i.recordToolStatsLocked(resp)
	return resp, nil
}

func (i *Interaction) recordToolStatsLocked(resp *models.ProviderResponse) {
	for _, tu := range resp.ToolUses {
		stat := i.toolStats[tu.ToolName]
		if stat == nil {
			stat = &ToolStat{}
			i.toolStats[tu.ToolName] = stat
		}
		stat.Count++
		success := tu.ToolValidation.Validated && tu.ToolValidation.Results == ""
		if success {
			stat.Success++
		} else {
			stat.Failure++
		}
		stat.LastUse = LastUse{Success: success, Timestamp: time.Now()}
	}
}

// ToolStats returns a defensive copy of the interaction's per-tool
// invocation statistics (spec §3).
func (i *Interaction) ToolStats() map[string]ToolStat {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[string]ToolStat, len(i.toolStats))
	for name, stat := range i.toolStats {
		out[name] = *stat
	}
	return out
}

// MarkAccessed records resourceID as accessed during this interaction.
func (i *Interaction) MarkAccessed(resourceID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.resources.Accessed[resourceID] = true
}

// MarkModified records resourceID as modified. Modified is always a
// subset of Accessed, so marking a resource modified also marks it
// accessed (spec §3 invariant).
func (i *Interaction) MarkModified(resourceID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.resources.Accessed[resourceID] = true
	i.resources.Modified[resourceID] = true
}

// SetActive marks resourceID as currently open/active, independent of the
// accessed/modified sets.
func (i *Interaction) SetActive(resourceID string, active bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if active {
		i.resources.Active[resourceID] = true
		return
	}
	delete(i.resources.Active, resourceID)
}

// Resources returns a defensive copy of the three resource sets.
func (i *Interaction) Resources() ResourceMetrics {
	i.mu.Lock()
	defer i.mu.Unlock()
	cp := newResourceMetrics()
	for k := range i.resources.Accessed {
		cp.Accessed[k] = true
	}
	for k := range i.resources.Modified {
		cp.Modified[k] = true
	}
	for k := range i.resources.Active {
		cp.Active[k] = true
	}
	return cp
}

// SetOverallObjective sets the interaction's top-level objective summary.
func (i *Interaction) SetOverallObjective(summary string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.objectives.Overall = &summary
	i.objectives.Timestamp = time.Now()
}

// AppendStatementObjective records a per-statement objective. It is a
// best-effort bookkeeping operation: per spec §4.1 these never propagate
// an error, so it silently drops an entry once |PerStatement| would
// exceed StatementCount rather than violating the invariant.
func (i *Interaction) AppendStatementObjective(summary string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.objectives.PerStatement) >= i.acct.statementCount {
		i.log.Warn("interaction: dropping statement objective, would exceed statementCount",
			"interaction_id", i.ID, "statement_count", i.acct.statementCount)
		return
	}
	i.objectives.PerStatement = append(i.objectives.PerStatement, summary)
	i.objectives.Timestamp = time.Now()
}

// Objectives returns a copy of the interaction's objectives.
func (i *Interaction) Objectives() Objectives {
	i.mu.Lock()
	defer i.mu.Unlock()
	cp := i.objectives
	cp.PerStatement = append([]string(nil), i.objectives.PerStatement...)
	return cp
}

// StartStatement begins a new user statement: the statement counter
// advances and statementTurnCount resets to zero, so the next Speak call
// zeroes the statement usage triple before accumulating into it (spec §3,
// §4.1 "Token accounting").
func (i *Interaction) StartStatement() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.acct.statementCount++
	i.acct.statementTurnCount = 0
}

// Counts returns the interaction's current turn/statement counters.
func (i *Interaction) Counts() (statementCount, statementTurnCount, interactionTurnCount int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.acct.statementCount, i.acct.statementTurnCount, i.acct.interactionTurnCount
}

// Usage returns the turn, statement, and interaction token-usage triples.
func (i *Interaction) Usage() (turn, statement, interactionTotal models.TokenUsage) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.acct.turn, i.acct.statement, i.acct.interaction
}

// Messages returns the interaction's ordered message log.
func (i *Interaction) Messages() []models.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]models.Message(nil), i.messages...)
}
