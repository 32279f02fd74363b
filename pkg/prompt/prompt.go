package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/nexmath/nexmath/pkg/api"
)

//go:embed rules/*.md
var rulesFS embed.FS

// ruleFiles are joined in this order, separated by horizontal rules.
var ruleFiles = []string{
	"rules/tutor.md",
	"rules/teaching-methodology.md",
	"rules/problem-solving.md",
	"rules/common-mistakes.md",
	"rules/web-interface.md",
}

var systemPrompt = sync.OnceValue(func() string {
	sections := make([]string, 0, len(ruleFiles))
	for _, name := range ruleFiles {
		data, err := rulesFS.ReadFile(name)
		if err != nil {
			// Embedded at build time; a missing file is a build defect.
			panic(fmt.Sprintf("prompt: reading %s: %v", name, err))
		}
		sections = append(sections, strings.TrimSpace(string(data)))
	}
	return strings.Join(sections, "\n\n---\n\n")
})

// SystemPrompt returns the compiled tutoring rules.
func SystemPrompt() string {
	return systemPrompt()
}

// ModeInstruction frames text with the instruction for mode. Unknown modes
// return text unchanged.
func ModeInstruction(mode api.Mode, text string) string {
	switch mode {
	case api.ModeExplain:
		return "Explain the following calculus concept to help students build deep conceptual " +
			"understanding. Focus on getting them unstuck and seeing the big picture. " +
			"Use this structure: " +
			"(1) Intuition First with a simple real-world analogy, " +
			"(2) Visual Representation: describe or provide a matplotlib code block, " +
			"(3) Formal Definition with proper notation, " +
			"(4) Simple Worked Example step-by-step, " +
			"(5) Common Mistakes to avoid. " +
			"Include one real-world application in 1-2 sentences. " +
			"End with 1-2 near-miss practice questions (no solutions). " +
			"Keep the initial explanation clear but not exhaustive; students will have buttons " +
			"to go deeper or request a different explanation if needed. Use very simple terms when " +
			"explaining foundational ideas.\n\n" +
			"Concept/Question: " + text

	case api.ModeSolve:
		return "Solve the following calculus problem using Polya's 4-step method: " +
			"(1) Understand: restate and identify given/asked, " +
			"(2) Plan: identify technique and outline strategy, " +
			"(3) Execute: step-by-step with explicit rule citations, " +
			"(4) Verify: check the answer, " +
			"(5) Extend: suggest 1-2 related near-miss practice problems (no solutions).\n\n" +
			"Problem: " + text

	case api.ModeQuiz:
		return "Generate a quiz on the following topic. Create 5 practice problems " +
			"arranged in increasing difficulty (Basic, Basic+, Intermediate, " +
			"Intermediate+, Challenge). For computational problems (derivatives, " +
			"integrals, limits, algebraic manipulations), provide 4 multiple choice " +
			"options labeled A), B), C), D) with exactly one correct answer. Mark " +
			"the correct answer using [ANSWER: X] on a new line after the choices " +
			"(where X is A, B, C, or D). For conceptual or word problems, omit the " +
			"choices and ask for a written explanation. Do NOT reveal solutions or " +
			"explanations yet.\n\n" +
			"Topic: " + text

	case api.ModeExam:
		return "Exam mode. Create ONE exam-style problem based on the topic below. " +
			"Do NOT solve it yet. Ask the student to respond with their full solution. " +
			"When they respond, grade it strictly and briefly: state whether it is correct, " +
			"then list 1-2 key errors or confirmations and a final answer. Keep a formal, " +
			"time-pressured tone.\n\n" +
			"Topic: " + text
	}
	return text
}

// ExplainFollowup frames a follow-up on an earlier explanation of concept.
// concept may be empty. Unknown actions return text unchanged.
func ExplainFollowup(action api.ExplainAction, text, concept string) string {
	switch action {
	case api.ExplainDeeper:
		ref := ""
		if concept != "" {
			ref = " on " + concept
		}
		return "The student wants to go deeper" + ref + ". Keep the response concise and focused. " +
			"Provide at most 4 short bullet points and at most 1 brief example. Prioritize the most " +
			"important advanced details, edge cases, or connections; omit extras. Build on the previous explanation.\n\n" +
			"Student request: " + text

	case api.ExplainDifferently:
		ref := ""
		if concept != "" {
			ref = ": " + concept
		}
		return "The student didn't fully understand the previous explanation" + ref + ". " +
			"Explain it using a COMPLETELY DIFFERENT approach, analogy, or representation. " +
			"If the first was algebraic, try visual/graphical. If it was formal, try intuitive. " +
			"If it was abstract, use a concrete physical example. Make it simpler and more accessible. " +
			"Keep it short: 3-5 sentences, at most 1 example, no extra sections.\n\n" +
			"Student request: " + text

	case api.ExplainVerify:
		ref := concept
		if ref == "" {
			ref = "this concept"
		}
		return "The student feels ready to demonstrate understanding of " + ref + ". " +
			"Ask them to explain " + ref + " in their own words. Be encouraging and " +
			"specific about what aspects you want them to cover."

	case api.ExplainReview:
		ref := concept
		if ref == "" {
			ref = "the concept"
		}
		return "The student explained " + ref + " as follows:\n\n\"" + text + "\"\n\n" +
			"Review their explanation using this structure:\n" +
			"1. **What they got right**: Affirm correct understanding and good insights\n" +
			"2. **Gentle corrections**: Point out any misconceptions or errors kindly\n" +
			"3. **Fill logical gaps**: Add any important points they missed\n" +
			"4. **Next steps**: If significant gaps remain, offer to re-explain specific " +
			"sub-concepts or suggest they practice with an example."
	}
	return text
}

// Suffixes appended by BuildUserText.
const (
	conciseSuffix     = "Keep the response concise. Do not show step-by-step work; provide only the final answer with a brief justification."
	applicationSuffix = "Include a 1-2 sentence real-world application."
	equationSuffix    = "Start with the formal definition/equation first, then provide intuition and examples."
	intuitionSuffix   = "Start with intuition first, then introduce formal definitions/equations."
	takeawaySuffix    = "End with a short 'Key takeaway' section (1-2 sentences)."
	transcribeSuffix  = "If an image is provided, first transcribe the problem clearly before solving."
)

// Options are the request settings that shape the user text of a turn.
type Options struct {
	Mode            api.Mode
	Text            string
	ExplainAction   api.ExplainAction
	OriginalConcept string
	ShowSteps       bool
	ExplainStyle    api.ExplainStyle
	ExamAnswer      bool
	HasImage        bool
}

// OptionsFromRequest collects the prompt options of req, using text as the
// student's message.
func OptionsFromRequest(req *api.ChatRequest, text string) Options {
	return Options{
		Mode:            req.Mode,
		Text:            text,
		ExplainAction:   req.ExplainAction,
		OriginalConcept: req.OriginalConcept,
		ShowSteps:       req.Steps(),
		ExplainStyle:    req.ExplainStyle,
		ExamAnswer:      req.ExamAnswer,
		HasImage:        req.Image != "",
	}
}

// BuildUserText returns the text sent to the model for one student turn.
func BuildUserText(o Options) string {
	var b strings.Builder

	switch {
	case o.Mode == api.ModeExam && o.ExamAnswer:
		b.WriteString("Exam grading mode. The student is answering the previous exam problem. " +
			"Grade strictly and briefly: state whether it is correct, list 1-2 key errors " +
			"or confirmations, and give the final answer. Keep a formal, time-pressured tone.\n\n" +
			"Student answer: " + o.Text)
	case o.Mode == api.ModeExplain && o.ExplainAction != "":
		b.WriteString(ExplainFollowup(o.ExplainAction, o.Text, o.OriginalConcept))
	default:
		b.WriteString(ModeInstruction(o.Mode, o.Text))
		if o.Mode == api.ModeSolve {
			if !o.ShowSteps {
				appendSection(&b, conciseSuffix)
			}
			appendSection(&b, applicationSuffix)
		}
	}

	if o.Mode == api.ModeExplain {
		if o.ExplainStyle == api.StyleEquation {
			appendSection(&b, equationSuffix)
		} else {
			appendSection(&b, intuitionSuffix)
		}
	}
	if o.Mode == api.ModeSolve || o.Mode == api.ModeExplain {
		appendSection(&b, takeawaySuffix)
	}
	if o.HasImage {
		appendSection(&b, transcribeSuffix)
	}
	return b.String()
}

func appendSection(b *strings.Builder, s string) {
	b.WriteString("\n\n")
	b.WriteString(s)
}
