package scoring

import "fmt"

// Dimension names.
const (
	DimFormalLogic         = "formalLogic"
	DimAnalyticalReasoning = "analyticalReasoning"
	DimCodeGeneration      = "codeGeneration"
	DimDebugging           = "debugging"
	DimTechnicalTerms      = "technicalTerms"
	DimMathematical        = "mathematical"
	DimMultiStep           = "multiStep"
	DimCreative            = "creative"
	DimDomainExpertise     = "domainExpertise"
	DimResearch            = "research"
	DimPlanning            = "planning"
	DimSimpleQuery         = "simpleQuery"
	DimCasualChat          = "casualChat"
	DimFormatting          = "formatting"

	DimTokenCount        = "tokenCount"
	DimNestedListDepth   = "nestedListDepth"
	DimConditionalLogic  = "conditionalLogic"
	DimCodeRatio         = "codeRatio"
	DimConstraintDensity = "constraintDensity"

	DimExpectedOutputLength = "expectedOutputLength"
	DimRepetitionRequest    = "repetitionRequest"
	DimToolCount            = "toolCount"
	DimConversationDepth    = "conversationDepth"
)

// FormalLogicKeywords drive the reasoning override: two distinct hits in the
// last user message route straight to the reasoning tier.
var FormalLogicKeywords = []string{
	"prove", "proof", "theorem", "lemma", "corollary", "axiom", "contradiction",
	"induction", "if and only if", "iff", "deduce", "deduction", "syllogism",
	"tautology", "q.e.d", "qed", "formal verification", "predicate logic",
	"modus ponens", "necessary and sufficient",
}

// DefaultDimensions returns the 23 built-in dimensions. Weights sum to 1.0.
func DefaultDimensions() []DimensionConfig {
	return []DimensionConfig{
		{Name: DimFormalLogic, Weight: 0.07, Direction: DirectionUp, Keywords: FormalLogicKeywords},
		{Name: DimAnalyticalReasoning, Weight: 0.06, Direction: DirectionUp, Keywords: []string{
			"analyze", "analyse", "analysis", "compare", "contrast", "evaluate", "assess",
			"trade-off", "trade-offs", "tradeoff", "tradeoffs", "pros and cons", "implications",
			"critique", "reasoning", "why does", "root cause", "justify", "weigh",
		}},
		{Name: DimCodeGeneration, Weight: 0.06, Direction: DirectionUp, Keywords: []string{
			"implement", "function", "class", "method", "write code", "refactor", "algorithm",
			"api", "endpoint", "script", "compile", "unit test", "typescript", "python",
			"golang", "rust", "java", "sql query", "schema", "interface",
		}},
		{Name: DimDebugging, Weight: 0.04, Direction: DirectionUp, Keywords: []string{
			"debug", "bug", "stack trace", "exception", "segfault", "race condition",
			"memory leak", "deadlock", "not working", "fails", "error message", "traceback",
			"regression", "crash",
		}},
		{Name: DimTechnicalTerms, Weight: 0.05, Direction: DirectionUp, Keywords: []string{
			"kubernetes", "distributed", "concurrency", "latency", "throughput", "database",
			"microservice", "microservices", "encryption", "architecture", "scalability",
			"consensus", "sharding", "replication", "cache invalidation", "tcp", "udp",
			"compiler", "kernel", "protocol", "idempotent",
		}},
		{Name: DimMathematical, Weight: 0.05, Direction: DirectionUp, Keywords: []string{
			"equation", "integral", "derivative", "matrix", "eigenvalue", "probability",
			"statistics", "calculus", "polynomial", "vector space", "optimization problem",
			"differential", "bayesian", "regression analysis", "combinatorics", "topology",
		}},
		{Name: DimMultiStep, Weight: 0.05, Direction: DirectionUp, Keywords: []string{
			"step by step", "step-by-step", "first", "then", "finally", "after that",
			"followed by", "next,", "subsequently", "in order to", "workflow", "pipeline",
		}},
		{Name: DimCreative, Weight: 0.03, Direction: DirectionUp, Keywords: []string{
			"story", "poem", "fiction", "narrative", "screenplay", "character", "worldbuilding",
			"lyrics", "novel", "creative",
		}},
		{Name: DimDomainExpertise, Weight: 0.04, Direction: DirectionUp, Keywords: []string{
			"legal", "medical", "diagnosis", "regulatory", "compliance", "financial",
			"clinical", "pharmacology", "jurisdiction", "tax", "actuarial", "gdpr", "hipaa",
		}},
		{Name: DimResearch, Weight: 0.04, Direction: DirectionUp, Keywords: []string{
			"research", "cite", "citations", "sources", "literature review", "in depth",
			"in-depth", "survey", "state of the art", "peer-reviewed", "methodology",
		}},
		{Name: DimPlanning, Weight: 0.03, Direction: DirectionUp, Keywords: []string{
			"plan", "roadmap", "strategy", "milestone", "migration", "design a system",
			"system design", "timeline", "prioritize",
		}},
		{Name: DimSimpleQuery, Weight: 0.06, Direction: DirectionDown, Keywords: []string{
			"what is", "who is", "when is", "where is", "define", "definition of",
			"what time", "how many", "capital of", "meaning of", "spell",
		}},
		{Name: DimCasualChat, Weight: 0.03, Direction: DirectionDown, Keywords: []string{
			"hello", "hi", "hey", "thanks", "thank you", "good morning", "good night",
			"how are you", "lol", "cool", "ok", "okay", "nice",
		}},
		{Name: DimFormatting, Weight: 0.02, Direction: DirectionDown, Keywords: []string{
			"rephrase", "reword", "fix the grammar", "fix grammar", "translate", "bullet points",
			"convert to", "format this", "make it shorter", "summarize", "tl;dr",
		}},

		{Name: DimTokenCount, Weight: 0.08, Direction: DirectionUp},
		{Name: DimNestedListDepth, Weight: 0.03, Direction: DirectionUp},
		{Name: DimConditionalLogic, Weight: 0.04, Direction: DirectionUp},
		{Name: DimCodeRatio, Weight: 0.05, Direction: DirectionUp},
		{Name: DimConstraintDensity, Weight: 0.04, Direction: DirectionUp},

		{Name: DimExpectedOutputLength, Weight: 0.05, Direction: DirectionUp},
		{Name: DimRepetitionRequest, Weight: 0.02, Direction: DirectionUp},
		{Name: DimToolCount, Weight: 0.03, Direction: DirectionUp},
		{Name: DimConversationDepth, Weight: 0.03, Direction: DirectionUp},
	}
}

// OverrideWeights returns a copy of dims with the named weights replaced.
func OverrideWeights(dims []DimensionConfig, overrides map[string]float64) ([]DimensionConfig, error) {
	out := make([]DimensionConfig, len(dims))
	copy(out, dims)
	index := make(map[string]int, len(out))
	for i, d := range out {
		index[d.Name] = i
	}
	for name, w := range overrides {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("unknown dimension %q", name)
		}
		out[i].Weight = w
	}
	return out, nil
}
