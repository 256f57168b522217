package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
)

func TestFormatHistory(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleBuyer, Content: "Qual o preço do Corolla?"},
		{Role: models.RoleSeller, Content: "R$ 140.000,00."},
		{Role: models.RoleBuyer, Content: "Aceita troca?"},
	}

	tests := []struct {
		name        string
		perspective models.Role
		want        []string
	}{
		{
			name:        "buyer perspective",
			perspective: models.RoleBuyer,
			want: []string{
				"Assistant: Qual o preço do Corolla?",
				"User: R$ 140.000,00.",
				"Assistant: Aceita troca?",
			},
		},
		{
			name:        "seller perspective",
			perspective: models.RoleSeller,
			want: []string{
				"User: Qual o preço do Corolla?",
				"Assistant: R$ 140.000,00.",
				"User: Aceita troca?",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatHistory(history, tt.perspective))
		})
	}
}

func TestFormatHistory_Empty(t *testing.T) {
	got := FormatHistory(nil, models.RoleSeller)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}
