package models

// FineTuneRow is one line of the fine-tuning JSONL file. Each seller turn
// produces one row.
type FineTuneRow struct {
	Memory    string `json:"memory"`
	UserInput string `json:"user_input"`
	Output    string `json:"output"`
}

// ConversationMetadata is the header of a per-conversation dataset file.
type ConversationMetadata struct {
	ScenarioKind string `json:"tipo_cenario"`
	Intent       string `json:"intencao"`
	ID           string `json:"id"`
}

// ConversationFile is the rich, one-file-per-conversation dataset record.
type ConversationFile struct {
	Metadata ConversationMetadata `json:"metadados"`
	Dialog   []TurnRecord         `json:"conversa"`
}

// NewConversationFile projects an example onto the rich file format.
func NewConversationFile(e *DatasetExample) *ConversationFile {
	return &ConversationFile{
		Metadata: ConversationMetadata{
			ScenarioKind: e.ScenarioKind,
			Intent:       e.Intent,
			ID:           e.ID.String(),
		},
		Dialog: e.Dialog(),
	}
}
