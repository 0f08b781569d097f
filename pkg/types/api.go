package types

// Control-plane actions understood by the request loop.
const (
	ActionLoadModel      = "load_model"
	ActionUnloadModel    = "unload_model"
	ActionGetModelStatus = "get_model_status"
	ActionGetAllModels   = "get_all_models"
	ActionSelectModel    = "select_model"
	ActionHealthCheck    = "health_check"
)

// Request is a control-plane request. Clients may use either "request_type"
// or the legacy "action" key for the discriminator.
type Request struct {
	RequestType string `json:"request_type,omitempty"`
	Action      string `json:"action,omitempty"`
	// RequestID is echoed verbatim in the response when present.
	RequestID   string `json:"request_id,omitempty"`
	ModelID     string `json:"model_id,omitempty"`
	TaskType    string `json:"task_type,omitempty"`
	ContextSize int    `json:"context_size,omitempty"`
}

// Kind returns the action discriminator, preferring request_type.
func (r Request) Kind() string {
	if r.RequestType != "" {
		return r.RequestType
	}
	return r.Action
}

// ModelInfo is the per-model view returned by the control plane: the static
// descriptor plus observed runtime state.
type ModelInfo struct {
	Model
	Status          ModelStatus `json:"status"`
	LastUsed        int64       `json:"last_used_unix,omitempty"`
	LastHealthCheck int64       `json:"last_health_check_unix,omitempty"`
}

// VRAMUsage is a budget snapshot in MB.
type VRAMUsage struct {
	TotalMB     int `json:"total_budget"`
	UsedMB      int `json:"used"`
	RemainingMB int `json:"remaining"`
}

// Response is the uniform control-plane response envelope.
type Response struct {
	Status    string `json:"status"` // "success" | "error"
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message,omitempty"`

	ModelInfo     *ModelInfo           `json:"model_info,omitempty"`
	IsLoaded      *bool                `json:"is_loaded,omitempty"`
	LastUsed      int64                `json:"last_used,omitempty"`
	Models        map[string]ModelInfo `json:"models,omitempty"`
	SelectedModel string               `json:"selected_model,omitempty"`
	VRAMUsage     *VRAMUsage           `json:"vram_usage,omitempty"`
}

// ErrorResponse is the JSON error payload used by the HTTP admin API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Success and Error build response envelopes with the request id echoed.
func Success(requestID string) Response {
	return Response{Status: "success", RequestID: requestID}
}

func Error(requestID, message string) Response {
	return Response{Status: "error", RequestID: requestID, Message: message}
}
