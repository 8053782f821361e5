package shared

// NLP (caikit HTTP runtime) payloads

type TokenizationTaskRequest struct {
	ModelID string `json:"model_id,omitempty"`
	Inputs  string `json:"inputs"`
}

type Token struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

type TokenizationResults struct {
	Tokens     []string `json:"tokens,omitempty"`
	Results    []Token  `json:"results,omitempty"`
	TokenCount int64    `json:"token_count,omitempty"`
}

type TokenClassificationTaskRequest struct {
	ModelID    string                         `json:"model_id,omitempty"`
	Inputs     string                         `json:"inputs"`
	Parameters *TokenClassificationParameters `json:"parameters,omitempty"`
}

type TokenClassificationParameters struct {
	Threshold *float64 `json:"threshold,omitempty"`
}

type TokenClassificationResult struct {
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Word       string  `json:"word"`
	Entity     string  `json:"entity"`
	EntityType string  `json:"entity_group,omitempty"`
	Score      float64 `json:"score"`
	TokenCount int64   `json:"token_count,omitempty"`
}

type TokenClassificationResults struct {
	Results []TokenClassificationResult `json:"results"`
}

type GenerationParameters struct {
	MaxNewTokens      *int64   `json:"max_new_tokens,omitempty"`
	MinNewTokens      *int64   `json:"min_new_tokens,omitempty"`
	TruncateInput     *int64   `json:"truncate_input_tokens,omitempty"`
	DecodingMethod    string   `json:"decoding_method,omitempty"`
	TopK              *int64   `json:"top_k,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	TypicalP          *float64 `json:"typical_p,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	MaxTime           *float64 `json:"max_time,omitempty"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
	Seed              *uint64  `json:"seed,omitempty"`
	PreserveInput     bool     `json:"preserve_input_text,omitempty"`
	InputTokens       bool     `json:"input_tokens,omitempty"`
	GeneratedTokens   bool     `json:"generated_tokens,omitempty"`
	TokenLogprobs     bool     `json:"token_logprobs,omitempty"`
	TokenRanks        bool     `json:"token_ranks,omitempty"`
}

type TextGenerationTaskRequest struct {
	ModelID    string                `json:"model_id,omitempty"`
	Inputs     string                `json:"inputs"`
	Parameters *GenerationParameters `json:"parameters,omitempty"`
}

type GeneratedToken struct {
	Text    string   `json:"text"`
	Logprob *float64 `json:"logprob,omitempty"`
	Rank    *int64   `json:"rank,omitempty"`
}

type GeneratedTextResult struct {
	GeneratedText   string           `json:"generated_text"`
	GeneratedTokens int64            `json:"generated_tokens,omitempty"`
	FinishReason    string           `json:"finish_reason,omitempty"`
	InputTokenCount int64            `json:"input_token_count,omitempty"`
	Seed            *uint64          `json:"seed,omitempty"`
	Tokens          []GeneratedToken `json:"tokens,omitempty"`
	InputTokens     []GeneratedToken `json:"input_tokens,omitempty"`
}

type TokenStreamDetails struct {
	FinishReason    string  `json:"finish_reason,omitempty"`
	GeneratedTokens int64   `json:"generated_tokens,omitempty"`
	Seed            *uint64 `json:"seed,omitempty"`
	InputTokenCount int64   `json:"input_token_count,omitempty"`
}

type GeneratedTextStreamResult struct {
	GeneratedText string              `json:"generated_text"`
	Tokens        []GeneratedToken    `json:"tokens,omitempty"`
	Details       *TokenStreamDetails `json:"details,omitempty"`
	InputTokens   []GeneratedToken    `json:"input_tokens,omitempty"`
}

// NlpHTTPError is the error envelope returned by caikit HTTP runtimes.
type NlpHTTPError struct {
	Message string `json:"message"`
}

// Chat completions (OpenAI compatible) payloads

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type ChatCompletionsRequest struct {
	Model            string         `json:"model"`
	Messages         []ChatMessage  `json:"messages"`
	Stream           bool           `json:"stream,omitempty"`
	MaxTokens        *int64         `json:"max_tokens,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	N                *int64         `json:"n,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	Seed             *int64         `json:"seed,omitempty"`
	Logprobs         bool           `json:"logprobs,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	User             string         `json:"user,omitempty"`
	Detectors        map[string]any `json:"detectors,omitempty"`
}

type ChatCompletionChoice struct {
	Index        int64       `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     uint64 `json:"prompt_tokens"`
	CompletionTokens uint64 `json:"completion_tokens"`
	TotalTokens      uint64 `json:"total_tokens"`
}

type ChatCompletionsResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *Usage                 `json:"usage,omitempty"`
}

type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

type ChatCompletionChunkChoice struct {
	Index        int64   `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

type ChatCompletionChunk struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
	Usage   *Usage                      `json:"usage,omitempty"`
}

// OpenAIError is both the error envelope some OpenAI compatible servers
// answer with and the body we render for caller-facing errors.
type OpenAIError struct {
	Message string `json:"message"`
	Object  string `json:"object,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// ErrorResponse is the caller-facing error body.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Details string `json:"details"`
}
