package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tazhate/familycal/internal/api/middleware"
)

// JSON-RPC structures
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// MCP structures
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MCP Server
type MCPServer struct {
	apiURL   string
	familyID string
	client   *http.Client
}

type mcpEnv struct {
	APIURL   string `env:"FAMILYCAL_API_URL" envDefault:"http://localhost:8080"`
	FamilyID string `env:"FAMILYCAL_FAMILY_ID"`
}

func NewMCPServer() (*MCPServer, error) {
	var cfg mcpEnv
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.FamilyID == "" {
		return nil, fmt.Errorf("FAMILYCAL_FAMILY_ID is required")
	}
	return &MCPServer{
		apiURL:   strings.TrimRight(cfg.APIURL, "/"),
		familyID: cfg.FamilyID,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Run serves newline-delimited JSON-RPC requests from in until EOF.
func (s *MCPServer) Run(in io.Reader, out, errOut io.Writer) {
	reader := bufio.NewReader(in)

	for {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if err != io.EOF {
				fmt.Fprintf(errOut, "Error reading: %v\n", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			fmt.Fprintf(errOut, "Error parsing JSON: %v\n", err)
			continue
		}

		// Notifications carry no id and get no response.
		if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
			continue
		}

		response := s.handleRequest(req)
		responseBytes, _ := json.Marshal(response)
		fmt.Fprintln(out, string(responseBytes))
	}
}

func (s *MCPServer) handleRequest(req JSONRPCRequest) JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized":
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: nil}
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	default:
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32601, Message: "Method not found"},
		}
	}
}

func (s *MCPServer) handleInitialize(req JSONRPCRequest) JSONRPCResponse {
	result := InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
	}
	result.ServerInfo.Name = "familycal-mcp"
	result.ServerInfo.Version = "1.0.0"

	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

var occurrenceID = Property{Type: "string", Description: "ID занятия: <id серии>-<YYYY-MM-DD>, или ID разового события"}

func (s *MCPServer) handleToolsList(req JSONRPCRequest) JSONRPCResponse {
	tools := []Tool{
		{
			Name:        "familycal_list_occurrences",
			Description: "Получить события семьи за период: занятия серий с учётом отмен и изменений, разовые события, дорогу и прибытие.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"from": {Type: "string", Description: "Начало периода YYYY-MM-DD (по умолчанию начало недели)"},
					"to":   {Type: "string", Description: "Конец периода YYYY-MM-DD включительно"},
				},
			},
		},
		{
			Name:        "familycal_get_occurrence",
			Description: "Получить одно занятие по его ID.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"id": occurrenceID},
				Required:   []string{"id"},
			},
		},
		{
			Name:        "familycal_edit_occurrence",
			Description: "Изменить одно занятие серии (название, место, время). Остальные занятия не меняются.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":       occurrenceID,
					"title":    {Type: "string", Description: "Новое название"},
					"location": {Type: "string", Description: "Новое место"},
					"start":    {Type: "string", Description: "Новое начало, RFC 3339"},
					"end":      {Type: "string", Description: "Новый конец, RFC 3339"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "familycal_skip_occurrence",
			Description: "Отменить одно занятие серии.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"id": occurrenceID},
				Required:   []string{"id"},
			},
		},
		{
			Name:        "familycal_list_series",
			Description: "Получить повторяющиеся события семьи с их правилами.",
			InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
		},
		{
			Name:        "familycal_delete_series",
			Description: "Удалить серию целиком вместе со всеми изменёнными занятиями.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"series_id": {Type: "string", Description: "ID серии"},
				},
				Required: []string{"series_id"},
			},
		},
	}

	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: tools}}
}

func (s *MCPServer) handleToolsCall(req JSONRPCRequest) JSONRPCResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32602, Message: "Invalid params"},
		}
	}

	family := url.PathEscape(s.familyID)
	id := url.PathEscape(argString(params.Arguments, "id"))

	var result string
	var isError bool

	switch params.Name {
	case "familycal_list_occurrences":
		q := url.Values{}
		for _, k := range []string{"from", "to"} {
			if v := argString(params.Arguments, k); v != "" {
				q.Set(k, v)
			}
		}
		path := "/api/families/" + family + "/occurrences"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		result, isError = s.apiRequest(http.MethodGet, path, nil)
	case "familycal_get_occurrence":
		result, isError = s.apiRequest(http.MethodGet, "/api/occurrences/"+id, nil)
	case "familycal_edit_occurrence":
		patch := map[string]any{}
		for _, k := range []string{"title", "location", "start", "end"} {
			if v := argString(params.Arguments, k); v != "" {
				patch[k] = v
			}
		}
		result, isError = s.apiRequest(http.MethodPatch, "/api/occurrences/"+id, patch)
	case "familycal_skip_occurrence":
		result, isError = s.apiRequest(http.MethodDelete, "/api/occurrences/"+id, nil)
	case "familycal_list_series":
		result, isError = s.apiRequest(http.MethodGet, "/api/families/"+family+"/series", nil)
	case "familycal_delete_series":
		seriesID := url.PathEscape(argString(params.Arguments, "series_id"))
		result, isError = s.apiRequest(http.MethodDelete, "/api/series/"+seriesID, nil)
	default:
		result = "Unknown tool: " + params.Name
		isError = true
	}

	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: result}},
			IsError: isError,
		},
	}
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func (s *MCPServer) apiRequest(method, path string, body any) (string, bool) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, s.apiURL+path, reqBody)
	if err != nil {
		return fmt.Sprintf("Error creating request: %v", err), true
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error making request: %v", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), true
	}

	if resp.StatusCode >= 400 {
		var apiErr middleware.ErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Sprintf("API Error: %s", apiErr.Message), true
		}
		return fmt.Sprintf("API Error: %s", resp.Status), true
	}
	if len(respBody) == 0 {
		return "OK", false
	}

	// Pretty print the data
	var prettyData bytes.Buffer
	if err := json.Indent(&prettyData, respBody, "", "  "); err != nil {
		return string(respBody), false
	}
	return prettyData.String(), false
}
