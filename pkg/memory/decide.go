package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/vector"
)

// decision is one reconciliation outcome for a candidate fact, resolved
// back to real memory ids and carrying the version observed at decision
// time for the optimistic write check.
type decision struct {
	candidateIdx int
	event        Event

	// targetID, prevText and readUpdatedAt identify the existing memory
	// an UPDATE/DELETE acts on, as read when the decision was made.
	targetID      string
	prevText      string
	readUpdatedAt time.Time

	// text is the memory text to write for ADD and UPDATE.
	text string
}

type decisionEntry struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Text  string `json:"text"`
}

type decisionResponse struct {
	Memory []decisionEntry `json:"memory"`
}

// decideBatch reconciles all candidates against their retrieved neighbors
// in a single model call. Stored memories are shown to the model under
// integer aliases; any id it returns that does not resolve to an alias
// downgrades that candidate to a conservative ADD. A wholly unparsable
// response downgrades every candidate the same way.
func (e *Engine) decideBatch(ctx context.Context, candidates []candidate) []decision {
	decisions := make([]decision, 0, len(candidates))

	// Alias table over the union of all retrieved neighbors. Integer
	// aliases keep real ids out of the prompt, so a hallucinated id can
	// never collide with a real one.
	var aliased []vector.SearchResult
	aliasOf := map[string]int{}
	for _, c := range candidates {
		for _, n := range c.neighbors {
			if _, ok := aliasOf[n.ID]; ok {
				continue
			}
			aliasOf[n.ID] = len(aliased)
			aliased = append(aliased, n)
		}
	}

	// Exact duplicates are settled by hash before the model is consulted.
	pending := make([]int, 0, len(candidates))
	for i, c := range candidates {
		if match, ok := hashMatch(c); ok {
			decisions = append(decisions, decision{
				candidateIdx:  i,
				event:         EventNone,
				targetID:      match.ID,
				prevText:      match.Payload.Data,
				readUpdatedAt: match.Payload.UpdatedAt,
			})
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) == 0 {
		return decisions
	}

	// With nothing stored nearby, every remaining fact is trivially new.
	if len(aliased) == 0 {
		for _, i := range pending {
			decisions = append(decisions, decision{
				candidateIdx: i,
				event:        EventAdd,
				text:         candidates[i].text,
			})
		}
		return decisions
	}

	entries, err := e.callForDecisions(ctx, candidates, pending, aliased)
	if err != nil {
		e.logger.Warn("decision response unparsable, downgrading batch to ADD",
			zap.Error(fmt.Errorf("%w: %v", ErrDecision, err)),
		)
		for _, i := range pending {
			decisions = append(decisions, decision{
				candidateIdx: i,
				event:        EventAdd,
				text:         candidates[i].text,
			})
		}
		return decisions
	}

	for n, i := range pending {
		c := candidates[i]

		if n >= len(entries) {
			decisions = append(decisions, decision{candidateIdx: i, event: EventAdd, text: c.text})
			continue
		}

		decisions = append(decisions, e.resolveEntry(i, c, entries[n], aliased))
	}

	return decisions
}

// resolveEntry validates one model decision and maps its alias back to a
// real memory. Anything malformed downgrades to ADD.
func (e *Engine) resolveEntry(idx int, c candidate, entry decisionEntry, aliased []vector.SearchResult) decision {
	text := strings.TrimSpace(entry.Text)
	if text == "" {
		text = c.text
	}

	downgrade := func(reason string) decision {
		e.logger.Warn("downgrading decision to ADD",
			zap.Error(ErrDecision),
			zap.String("reason", reason),
			zap.String("event", entry.Event),
			zap.String("id", entry.ID),
		)
		return decision{candidateIdx: idx, event: EventAdd, text: c.text}
	}

	switch Event(strings.ToUpper(strings.TrimSpace(entry.Event))) {
	case EventAdd:
		return decision{candidateIdx: idx, event: EventAdd, text: text}

	case EventNone:
		d := decision{candidateIdx: idx, event: EventNone}
		if target, ok := resolveAlias(entry.ID, aliased); ok {
			d.targetID = target.ID
			d.prevText = target.Payload.Data
			d.readUpdatedAt = target.Payload.UpdatedAt
		}
		return d

	case EventUpdate:
		target, ok := resolveAlias(entry.ID, aliased)
		if !ok {
			return downgrade("update references unknown memory")
		}
		return decision{
			candidateIdx:  idx,
			event:         EventUpdate,
			targetID:      target.ID,
			prevText:      target.Payload.Data,
			readUpdatedAt: target.Payload.UpdatedAt,
			text:          text,
		}

	case EventDelete:
		target, ok := resolveAlias(entry.ID, aliased)
		if !ok {
			return downgrade("delete references unknown memory")
		}
		return decision{
			candidateIdx:  idx,
			event:         EventDelete,
			targetID:      target.ID,
			prevText:      target.Payload.Data,
			readUpdatedAt: target.Payload.UpdatedAt,
		}

	default:
		return downgrade("unknown event")
	}
}

func (e *Engine) callForDecisions(ctx context.Context, candidates []candidate, pending []int, aliased []vector.SearchResult) ([]decisionEntry, error) {
	texts := make([]string, len(aliased))
	for i, n := range aliased {
		texts[i] = n.Payload.Data
	}

	facts := make([]string, len(pending))
	for n, i := range pending {
		facts[n] = candidates[i].text
	}

	prompt := fmt.Sprintf(decisionPrompt, renderExistingMemories(texts), renderFacts(facts))
	if e.policy.DecisionPrompt != "" {
		prompt = fmt.Sprintf("%s\n\nExisting memories:\n%s\nNew facts:\n%s",
			e.policy.DecisionPrompt, renderExistingMemories(texts), renderFacts(facts))
	}

	response, err := e.llmCall(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("calling model: %w", err)
	}

	raw := extractJSON(response)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var parsed decisionResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling decisions: %w", err)
	}

	return parsed.Memory, nil
}

func resolveAlias(id string, aliased []vector.SearchResult) (vector.SearchResult, bool) {
	alias, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || alias < 0 || alias >= len(aliased) {
		return vector.SearchResult{}, false
	}
	return aliased[alias], true
}

func hashMatch(c candidate) (vector.SearchResult, bool) {
	for _, n := range c.neighbors {
		if n.Payload.Hash == c.hash && !n.Payload.Deleted {
			return n, true
		}
	}
	return vector.SearchResult{}, false
}
