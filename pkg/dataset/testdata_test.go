package dataset

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
)

func sellerReply(question, price string) string {
	return "Input: " + question + "\n" +
		"Thought: O cliente quer saber o preço.\n" +
		`ActionInput: {"model": "Strada", "brand": "Fiat", "salePrice": "` + price + `"}` + "\n" +
		"NextAgent: \n" +
		"FinalResponse: O Strada sai por " + price + " reais."
}

// testConversation builds a conversation of n exchanges with well-formed
// seller replies.
func testConversation(n int) *models.Conversation {
	conv := &models.Conversation{
		ID:           uuid.New(),
		ScenarioKind: "specific_model",
		Context:      "Você procura um Fiat Strada 2022.",
		Intent:       "Quero saber o preço.",
	}
	for i := 1; i <= n; i++ {
		q := fmt.Sprintf("Pergunta %d?", i)
		a := sellerReply(q, fmt.Sprintf("9%d000", i))
		conv.Turns = append(conv.Turns,
			models.TurnRecord{TurnIndex: i, Agent: models.RoleBuyer, ResponseText: q, Outcome: models.TurnOutcomeGenerated},
			models.TurnRecord{TurnIndex: i, Agent: models.RoleSeller, ResponseText: a, Outcome: models.TurnOutcomeGenerated},
		)
		conv.Messages = append(conv.Messages,
			models.Message{Role: models.RoleBuyer, Content: q},
			models.Message{Role: models.RoleSeller, Content: a},
		)
	}
	return conv
}

func testExample(seq, exchanges int) *models.DatasetExample {
	return models.NewDatasetExample(seq, testConversation(exchanges), time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
}
