package agentrunner

import (
	"fmt"
	"strings"

	"github.com/sreforge/debate-engine/internal/debatestate"
)

// rollingWindow is the last N=6 messages considered for prompt context,
// per spec.md §4.5 step 1.
const rollingWindow = 6

// maxPromptChars bounds the assembled prompt; truncation removes the
// oldest rolling-context lines first. Command and expected-schema
// sections are never truncated (spec.md §4.5: "command and
// expected-schema sections never truncated").
const maxPromptChars = 8000

// BuildPrompt assembles the fixed system prompt plus rolling condensed
// context plus an output-schema instruction, per spec.md §4.5 step 1.
func BuildPrompt(desc Descriptor, agentName string, snap debatestate.Snapshot, cmd debatestate.Command) string {
	var fixed strings.Builder
	fixed.WriteString(desc.SystemPrompt)
	fixed.WriteString("\n\n# Command\n")
	fmt.Fprintf(&fixed, "task: %s\nfocus: %s\nexpected_output_schema_id: %s\nuse_tool: %s\ndeadline_ms: %d\n",
		cmd.Task, cmd.Focus, cmd.ExpectedOutputSchemaID, cmd.UseTool, cmd.DeadlineMs)
	fixed.WriteString("\nRespond with a single JSON object matching the expected output schema. Include a \"confidence\" field in [0,1] and an \"evidence_chain\" list of source references you relied on.\n")

	rolling := buildRollingContext(snap, agentName)

	budget := maxPromptChars - fixed.Len()
	if budget < 0 {
		budget = 0
	}
	rolling = truncateFromOldest(rolling, budget)

	return fixed.String() + "\n# Context\n" + rolling
}

// buildRollingContext renders incident_summary, latest asset mapping,
// and the last rollingWindow messages restricted to this agent's phase
// and adjacent phases, per spec.md §4.5 step 1.
func buildRollingContext(snap debatestate.Snapshot, agentName string) string {
	var b strings.Builder

	if v, ok := snap.Context["incident_summary"]; ok {
		fmt.Fprintf(&b, "incident_summary: %v\n", v)
	}
	if v, ok := snap.Context["asset_mapping"]; ok {
		fmt.Fprintf(&b, "asset_mapping: %v\n", v)
	}
	if v, ok := snap.Context["accumulated_summary"]; ok {
		fmt.Fprintf(&b, "accumulated_summary: %v\n", v)
	}

	relevant := filterAdjacentPhase(snap)
	start := 0
	if len(relevant) > rollingWindow {
		start = len(relevant) - rollingWindow
	}
	b.WriteString("recent_messages:\n")
	for _, m := range relevant[start:] {
		fmt.Fprintf(&b, "- [%s/%s] %s: %s\n", m.Phase, m.Role, m.AgentName, m.Content)
	}

	return b.String()
}

// filterAdjacentPhase keeps messages from the current phase and its
// immediate neighbor in phaseOrder, matching spec.md's "last N=6
// messages restricted to this agent's phase and adjacent phases".
func filterAdjacentPhase(snap debatestate.Snapshot) []debatestate.Message {
	current := snap.Route.CurrentPhase
	var out []debatestate.Message
	for _, m := range snap.Messages {
		if debatestate.IsAdjacentPhase(current, m.Phase) {
			out = append(out, m)
		}
	}
	return out
}

// truncateFromOldest drops leading lines (oldest-first) of text until it
// fits within budget characters, per spec.md §4.5's "truncation from
// oldest" rule.
func truncateFromOldest(text string, budget int) string {
	if len(text) <= budget {
		return text
	}
	lines := strings.Split(text, "\n")
	for len(strings.Join(lines, "\n")) > budget && len(lines) > 1 {
		lines = lines[1:]
	}
	out := strings.Join(lines, "\n")
	if len(out) > budget {
		out = out[len(out)-budget:]
	}
	return out
}
