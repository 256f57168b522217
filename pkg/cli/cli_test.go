package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/dataset"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/llm"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/prompts"
)

func init() {
	color.NoColor = true
}

// useMockService swaps the provider factory for a scripted mock that answers
// buyer prompts with a question and seller prompts with a five-section reply.
func useMockService(t *testing.T) *llm.MockCompletionService {
	t.Helper()
	mock := llm.NewMockCompletionService()
	n := 0
	mock.CompleteFunc = func(_ context.Context, req *llm.CompletionRequest) (string, error) {
		n++
		if strings.Contains(req.Prompt, prompts.SellerAgentTag) {
			return fmt.Sprintf("Input: pergunta\nThought: cliente quer preço\n"+
				`ActionInput: {'brand': 'Fiat', 'model': 'Strada', 'salePrice': '9%d000'}`+
				"\nNextAgent: \nFinalResponse: O Strada sai por 9%d mil.", n, n), nil
		}
		return fmt.Sprintf("Quanto custa o carro %d?", n), nil
	}

	orig := newService
	newService = func(context.Context, *llm.Config, llm.CallRecorder, *zap.Logger) (llm.CompletionService, error) {
		return mock, nil
	}
	t.Cleanup(func() { newService = orig })
	return mock
}

// isolateEnv points outputs at a temp dir and disables external stores.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for k, v := range map[string]string{
		"OUTPUT_DIR":            dir,
		"OUTPUT_CALL_LOG_DIR":   "",
		"OUTPUT_SHAREGPT_FILE":  "sharegpt.jsonl",
		"OUTPUT_READABLE_DIR":   "",
		"PGENABLED":             "false",
		"REDIS_HOST":            "",
		"LLM_PROVIDER":          "gemini",
		"DIALOG_BACKOFF_UNIT":   "1ns",
		"DIALOG_SCENARIO_FILE":  "",
		"BATCH_DELAY_UNIT":      "1ns",
		"BATCH_MIN_DELAY_UNITS": "0",
		"BATCH_MAX_DELAY_UNITS": "1",
		"LOG_LEVEL":             "error",
	} {
		t.Setenv(k, v)
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd("1.2.3")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "dialoggen 1.2.3 ("))

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "1.2.3", info.Version)
}

func TestGenerateCmd_WritesDataset(t *testing.T) {
	dir := isolateEnv(t)
	mock := useMockService(t)

	out, err := execute(t, "generate", "--count", "2", "--turns", "2", "--seed", "11")
	require.NoError(t, err, out)

	assert.Contains(t, out, "collected 2/2 examples in 2 attempts (0 rejected)")
	// 2 conversations x 2 turns x 2 roles, less any cache hits.
	assert.LessOrEqual(t, mock.CompleteCalls, 8)
	assert.GreaterOrEqual(t, mock.CompleteCalls, 6)

	f, err := os.Open(filepath.Join(dir, "dataset.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	analysis, err := dataset.Analyze(f)
	require.NoError(t, err)
	assert.Equal(t, 4, analysis.Rows)
	assert.Equal(t, 4, analysis.Valid, "single-quoted ActionInput is repaired")
	assert.Equal(t, 4, analysis.FieldCoverage["brand"])

	assert.FileExists(t, filepath.Join(dir, "conversas", "conversa_1.json"))
	assert.FileExists(t, filepath.Join(dir, "conversas", "conversa_2.json"))
	assert.FileExists(t, filepath.Join(dir, "sharegpt.jsonl"))
}

func TestGenerateCmd_VerbosePrintsTranscript(t *testing.T) {
	isolateEnv(t)
	useMockService(t)

	out, err := execute(t, "generate", "-n", "1", "--turns", "1", "-v")
	require.NoError(t, err, out)
	assert.Contains(t, out, "[1] Comprador:\nQuanto custa o carro 1?")
	assert.Contains(t, out, "[1] Vendedor:\nInput: pergunta")
}

func TestGenerateCmd_InvalidFlag(t *testing.T) {
	isolateEnv(t)
	useMockService(t)

	_, err := execute(t, "generate", "--turns", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation.turns")
}

func TestChatCmd_SavesConversation(t *testing.T) {
	dir := isolateEnv(t)
	useMockService(t)

	out, err := execute(t, "chat", "--scenario", "family", "--turns", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Cenário: family")
	assert.Contains(t, out, "Conversation saved to")

	data, err := os.ReadFile(filepath.Join(dir, "conversa.json"))
	require.NoError(t, err)
	var file models.ConversationFile
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Equal(t, "family", file.Metadata.ScenarioKind)
	require.Len(t, file.Dialog, 4)
	assert.NotEmpty(t, file.Dialog[1].SystemPrompt, "chat always records prompts")
}

func TestChatCmd_UnknownScenario(t *testing.T) {
	isolateEnv(t)
	useMockService(t)

	_, err := execute(t, "chat", "--scenario", "luxury")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown scenario "luxury"`)
}

func TestAnalyzeCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.jsonl")
	row := models.FineTuneRow{
		Memory:    "",
		UserInput: "Qual o preço?",
		Output:    "Input: x\nThought: y\nActionInput: {\"brand\": \"Fiat\"}\nNextAgent: \nFinalResponse: z",
	}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, []byte("\n{}\n")...), 0o644))

	out, err := execute(t, "analyze", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Total rows: 2")
	assert.Contains(t, out, "Valid: 1 (50.00%)")
	assert.Contains(t, out, "line 2: missing field memory")

	out, err = execute(t, "analyze", path, "--json")
	require.NoError(t, err)
	var analysis dataset.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &analysis))
	assert.Equal(t, 1, analysis.FieldCoverage["brand"])
}

func TestAnalyzeCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "analyze", filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open dataset")
}
