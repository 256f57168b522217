package prompts

import (
	"strings"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
)

// Wire tokens of the user prompt template. Downstream fine-tuning tooling
// parses these, so they must not change.
const (
	AgentDelimiter       = "<|AgenteAtual|>"
	Banner               = "Use the conversation history to provide context and respond to the user's message."
	HistoryHeader        = "Conversation History:"
	LatestMessageHeader  = "Latest User Message:"
	DefaultLengthLimiter = "Use no máximo 2 frases curtas."
)

// Agent tags written between the delimiters.
const (
	BuyerAgentTag  = "BuyerAgent"
	SellerAgentTag = "SellerAgent"
)

// AgentTag returns the delimiter tag for role.
func AgentTag(role models.Role) string {
	if role == models.RoleSeller {
		return SellerAgentTag
	}
	return BuyerAgentTag
}

// Prompt is the composed input for one agent turn.
type Prompt struct {
	System string
	User   string
}

// Combined returns the single instruction blob sent to services that do not
// separate system and user roles.
func (p Prompt) Combined() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

// Composer builds system and user prompts for agent turns.
type Composer struct {
	// LengthLimitDirective is appended to the system prompt of length-limited turns.
	LengthLimitDirective string
}

// NewComposer returns a Composer with the default length-limit directive.
func NewComposer() *Composer {
	return &Composer{LengthLimitDirective: DefaultLengthLimiter}
}

// BuildSystemPrompt returns roleRules, followed by the length-limit
// directive when lengthLimited is set.
func (c *Composer) BuildSystemPrompt(roleRules string, lengthLimited bool) string {
	rules := strings.TrimSpace(roleRules)
	if !lengthLimited || c.LengthLimitDirective == "" {
		return rules
	}
	return rules + "\n\n" + c.LengthLimitDirective
}

// BuildUserPrompt renders the fixed user prompt template:
//
//	<|AgenteAtual|>{tag}<|AgenteAtual|>
//
//	{banner}
//
//	Conversation History:
//	{history lines joined by \n}
//
//	Latest User Message:
//	{latest}
func (c *Composer) BuildUserPrompt(formattedHistory []string, latestMessage, agentTag string) string {
	var b strings.Builder

	b.WriteString(AgentDelimiter)
	b.WriteString(agentTag)
	b.WriteString(AgentDelimiter)
	b.WriteString("\n\n")

	b.WriteString(Banner)
	b.WriteString("\n\n")

	b.WriteString(HistoryHeader)
	b.WriteString("\n")
	b.WriteString(strings.Join(formattedHistory, "\n"))
	b.WriteString("\n\n")

	b.WriteString(LatestMessageHeader)
	b.WriteString("\n")
	b.WriteString(latestMessage)

	return b.String()
}

// Compose builds the full prompt for role given its rules, the shared
// history and the message it is answering.
func (c *Composer) Compose(role models.Role, roleRules string, history []models.Message, latestMessage string, lengthLimited bool) Prompt {
	return Prompt{
		System: c.BuildSystemPrompt(roleRules, lengthLimited),
		User:   c.BuildUserPrompt(FormatHistory(history, role), latestMessage, AgentTag(role)),
	}
}
