package workflow

import (
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Canonical saga states.
const (
	StateAdmit       = "ADMIT"
	StateAnalyze     = "ANALYZE"
	StateGen         = "GEN"
	StateVerify      = "VERIFY"
	StateRank        = "RANK"
	StateSelect      = "SELECT"
	StateEnrich      = "ENRICH"
	StateBuild       = "BUILD"
	StateFinalVerify = "FINAL_VERIFY"
	StatePackage     = "PACKAGE"
	StateDone        = "DONE"
)

// Template names.
const (
	TemplateCreate = "CREATE"
	TemplateRevise = "REVISE"
)

// Completion topics for states whose agents have no reserved domain topic.
const (
	TopicRevisionAnalyzed = "revision-analyzed"
	TopicPackageReady     = "package-ready"
)

// StateSpec describes one state of a template: the task it dispatches on
// entry and the event that completes it.
type StateSpec struct {
	// Queue and TaskType name the work dispatched on entry. Empty for
	// states with no agent work.
	Queue    string
	TaskType string
	// Completion is the bus topic whose arrival (for the owning saga)
	// finishes this state.
	Completion string
	// AutoAdvance states transition immediately after entry with no agent
	// round-trip.
	AutoAdvance bool
}

// Template is a saga state machine: the ordered state list, the allowed
// transitions, and per-state dispatch specs. The first entry of a
// transition list is the happy path; a second entry, when present, is the
// fallback edge taken on a failed verification.
type Template struct {
	Name        string
	States      []string
	Transitions map[string][]string
	Specs       map[string]StateSpec
}

// First returns the template's initial state.
func (t *Template) First() string {
	return t.States[0]
}

// Allowed reports whether from -> to is a legal transition.
func (t *Template) Allowed(from, to string) bool {
	for _, s := range t.Transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateForCompletion returns the state that the given completion topic
// finishes, or "".
func (t *Template) StateForCompletion(topic string) string {
	for state, spec := range t.Specs {
		if spec.Completion == topic {
			return state
		}
	}
	return ""
}

// pipelineSpecs is the dispatch table shared by CREATE and REVISE: each
// state's task lands on its stage queue and the stage agent's published
// topic completes it.
func pipelineSpecs() map[string]StateSpec {
	return map[string]StateSpec{
		StateAdmit: {AutoAdvance: true},
		StateAnalyze: {
			Queue: types.QueueSearchRequests, TaskType: "analyze-revision",
			Completion: TopicRevisionAnalyzed,
		},
		StateGen: {
			Queue: types.QueueCandidateGeneration, TaskType: "generate-candidates",
			Completion: types.TopicCandidates,
		},
		StateVerify: {
			Queue: types.QueueValidationTasks, TaskType: "validate-availability",
			Completion: types.TopicAvailability,
		},
		StateRank: {
			Queue: types.QueueRankingTasks, TaskType: "rank-candidates",
			Completion: types.TopicSelectionProp,
		},
		StateSelect: {
			Queue: types.QueueSelectionTasks, TaskType: "confirm-selection",
			Completion: types.TopicSelectionConf,
		},
		StateEnrich: {
			Queue: types.QueueEnrichmentTasks, TaskType: "enrich-itinerary",
			Completion: types.TopicItinerary,
		},
		StateBuild: {
			Queue: types.QueueOutputGeneration, TaskType: "build-output",
			Completion: types.TopicOutput,
		},
		StateFinalVerify: {
			Queue: types.QueueValidationTasks, TaskType: "final-verify",
			Completion: types.TopicConstraints,
		},
		StatePackage: {
			Queue: types.QueueOutputGeneration, TaskType: "package-output",
			Completion: TopicPackageReady,
		},
		StateDone: {},
	}
}

// CreateTemplate is the CREATE saga:
// ADMIT -> GEN -> VERIFY -> (RANK|GEN) -> SELECT -> ENRICH -> BUILD ->
// FINAL_VERIFY -> (PACKAGE|BUILD) -> DONE.
func CreateTemplate() *Template {
	return &Template{
		Name: TemplateCreate,
		States: []string{
			StateAdmit, StateGen, StateVerify, StateRank, StateSelect,
			StateEnrich, StateBuild, StateFinalVerify, StatePackage, StateDone,
		},
		Transitions: map[string][]string{
			StateAdmit:       {StateGen},
			StateGen:         {StateVerify},
			StateVerify:      {StateRank, StateGen},
			StateRank:        {StateSelect},
			StateSelect:      {StateEnrich},
			StateEnrich:      {StateBuild},
			StateBuild:       {StateFinalVerify},
			StateFinalVerify: {StatePackage, StateBuild},
			StatePackage:     {StateDone},
		},
		Specs: pipelineSpecs(),
	}
}

// ReviseTemplate is the REVISE saga: CREATE with an ANALYZE stage after
// admission.
func ReviseTemplate() *Template {
	return &Template{
		Name: TemplateRevise,
		States: []string{
			StateAdmit, StateAnalyze, StateGen, StateVerify, StateRank,
			StateSelect, StateEnrich, StateBuild, StateFinalVerify,
			StatePackage, StateDone,
		},
		Transitions: map[string][]string{
			StateAdmit:       {StateAnalyze},
			StateAnalyze:     {StateGen},
			StateGen:         {StateVerify},
			StateVerify:      {StateRank, StateGen},
			StateRank:        {StateSelect},
			StateSelect:      {StateEnrich},
			StateEnrich:      {StateBuild},
			StateBuild:       {StateFinalVerify},
			StateFinalVerify: {StatePackage, StateBuild},
			StatePackage:     {StateDone},
		},
		Specs: pipelineSpecs(),
	}
}
