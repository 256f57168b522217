package completion

import (
	"math/rand/v2"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/structured"
)

// ErrorResponse is the literal text returned in error-marker mode.
const ErrorResponse = "Desculpe, houve um erro na geração da resposta."

// ErrorMarker is the substring that identifies ErrorResponse in a transcript.
const ErrorMarker = "houve um erro na geração da resposta"

// FallbackMode selects what Complete returns once retries are exhausted.
type FallbackMode string

const (
	// FallbackCanned returns a plausible, role-appropriate sentence.
	FallbackCanned FallbackMode = "canned"
	// FallbackErrorMarker returns ErrorResponse so the batch discards the conversation.
	FallbackErrorMarker FallbackMode = "error_marker"
)

// SellerFallback is a canned seller answer. It is rendered in the
// structured output format with the buyer's message echoed as Input.
type SellerFallback struct {
	Thought       string
	FinalResponse string
}

// FallbackSet holds the canned responses for each role.
type FallbackSet struct {
	Buyer  []string
	Seller []SellerFallback
}

// DefaultFallbacks returns the built-in canned responses. Buyer entries are
// questions; seller entries state a price or a specification.
func DefaultFallbacks() *FallbackSet {
	return &FallbackSet{
		Buyer: []string{
			"Qual o preço do Honda Civic 2024 LX?",
			"O Toyota Corolla XEi tem câmbio automático?",
			"Qual a garantia do Jeep Compass?",
			"Qual o consumo médio do Chevrolet Onix na cidade?",
			"O Hyundai Creta possui controle de estabilidade?",
		},
		Seller: []SellerFallback{
			{
				Thought:       "O usuário pediu o preço; informo um valor de referência.",
				FinalResponse: "O Honda Civic 2024 LX custa R$ 244.900,00.",
			},
			{
				Thought:       "O usuário pediu uma especificação; informo o câmbio.",
				FinalResponse: "O Toyota Corolla XEi possui câmbio automático CVT.",
			},
			{
				Thought:       "O usuário pediu a garantia; informo o prazo.",
				FinalResponse: "O Jeep Compass tem garantia de 3 anos sem limite de quilometragem.",
			},
			{
				Thought:       "O usuário pediu o consumo; informo a média urbana.",
				FinalResponse: "O Chevrolet Onix faz em média 13 km/l na cidade.",
			},
		},
	}
}

// Pick returns a canned response for role. Seller responses echo
// latestMessage in their Input section.
func (f *FallbackSet) Pick(role models.Role, latestMessage string, rng *rand.Rand) string {
	if role == models.RoleSeller {
		fb := f.Seller[rng.IntN(len(f.Seller))]
		out := &structured.ParsedOutput{
			Input:         latestMessage,
			Thought:       fb.Thought,
			ActionInput:   structured.ActionInput{},
			FinalResponse: fb.FinalResponse,
		}
		return out.Format()
	}
	return f.Buyer[rng.IntN(len(f.Buyer))]
}
