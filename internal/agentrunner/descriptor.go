// Package agentrunner implements the Agent Runner (spec.md §4.5): the
// per-invocation pipeline that builds a specialist's prompt, gates and
// invokes tools, calls the LLM Gateway, parses the structured output,
// extracts evidence, and composes the specialist->supervisor feedback
// record.
//
// The descriptor/registry shape here is grounded on the teacher's
// internal/debate/agents/specialization.go (Specialization,
// SpecializedAgent, CapabilitySet), generalized from the teacher's
// open-ended code/security/architecture domain taxonomy to the fixed
// SRE specialist roster implied by spec.md §4.4's rule-based transitions
// (LogAgent, DomainAgent, CodeAgent, plus the always-present
// SupervisorAgent/JudgeAgent/VerificationAgent roles).
package agentrunner

import "github.com/sreforge/debate-engine/internal/toolctx"

// Role names the fixed specialist roster spec.md §4.4 references by
// name in its rule-based supervisor transitions.
type Role string

const (
	RoleLogAgent          Role = "LogAgent"
	RoleDomainAgent       Role = "DomainAgent"
	RoleCodeAgent         Role = "CodeAgent"
	RoleSupervisorAgent   Role = "SupervisorAgent"
	RoleJudgeAgent        Role = "JudgeAgent"
	RoleVerificationAgent Role = "VerificationAgent"
)

// Descriptor is the static profile of one agent role: its fixed system
// prompt and which tools its allow-list covers, grounded on the
// teacher's Specialization/RoleAffinity pairing of a role to a set of
// capabilities.
type Descriptor struct {
	Role          Role
	SystemPrompt  string
	AllowedTools  []toolctx.Kind
}

// Registry holds the fixed roster of agent Descriptors for a session.
type Registry struct {
	descriptors map[Role]Descriptor
}

// NewRegistry builds the default SRE specialist roster.
func NewRegistry() *Registry {
	r := &Registry{descriptors: make(map[Role]Descriptor)}
	r.register(Descriptor{
		Role:         RoleLogAgent,
		SystemPrompt: "You are LogAgent, an SRE specialist who finds root-cause signal in raw logs. Cite specific log lines as evidence.",
		AllowedTools: []toolctx.Kind{toolctx.KindLocalLogReader, toolctx.KindMetricsSnapshotAnalyzer},
	})
	r.register(Descriptor{
		Role:         RoleDomainAgent,
		SystemPrompt: "You are DomainAgent, an SRE specialist who maps incidents to known failure domains and prior incidents. Cite runbook cases and domain tables as evidence.",
		AllowedTools: []toolctx.Kind{toolctx.KindDomainTableLookup, toolctx.KindRunbookCaseLibrary},
	})
	r.register(Descriptor{
		Role:         RoleCodeAgent,
		SystemPrompt: "You are CodeAgent, an SRE specialist who inspects source and recent changes for a causal connection to the incident. Cite code locations and change windows as evidence.",
		AllowedTools: []toolctx.Kind{toolctx.KindSourceRepoSearch, toolctx.KindChangeWindowScanner},
	})
	r.register(Descriptor{
		Role:         RoleSupervisorAgent,
		SystemPrompt: "You are the SupervisorAgent. Given the condensed debate state, decide which specialists act next and what to ask them, never violating phase order.",
	})
	r.register(Descriptor{
		Role:         RoleJudgeAgent,
		SystemPrompt: "You are the JudgeAgent. Synthesize all specialist feedback and evidence into a single final root-cause judgment, citing at least two evidence items from at least two distinct source kinds.",
	})
	r.register(Descriptor{
		Role:         RoleVerificationAgent,
		SystemPrompt: "You are the VerificationAgent. Sanity-check the judge's final result against the evidence chain and flag any unsupported claim.",
	})
	return r
}

func (r *Registry) register(d Descriptor) { r.descriptors[d.Role] = d }

// Get returns the Descriptor for a role.
func (r *Registry) Get(role Role) (Descriptor, bool) {
	d, ok := r.descriptors[role]
	return d, ok
}
