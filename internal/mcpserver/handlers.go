package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *PeerflagClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *PeerflagClient) *Handlers {
	return &Handlers{client: client}
}

// HandleCheckPurchase evaluates a hypothetical purchase.
func (h *Handlers) HandleCheckPurchase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user := req.GetString("user", "")
	if user == "" {
		return mcp.NewToolResultError("user is required"), nil
	}
	amount := req.GetFloat("amount", -1)
	if amount < 0 {
		return mcp.NewToolResultError("amount is required and must be non-negative"), nil
	}

	raw, err := h.client.CheckPurchase(ctx, user, amount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check purchase: %v", err)), nil
	}

	text, err := formatCheckResult(raw, user, amount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decision: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetUserFlags returns one user's evaluation history.
func (h *Handlers) HandleGetUserFlags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user := req.GetString("user", "")
	if user == "" {
		return mcp.NewToolResultError("user is required"), nil
	}
	flaggedOnly := req.GetBool("flagged_only", false)
	limit := req.GetInt("limit", 20)

	raw, err := h.client.GetUserFlags(ctx, user, flaggedOnly, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get flags: %v", err)), nil
	}

	text, err := formatDecisionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decisions: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListFlags lists recent evaluations across all users.
func (h *Handlers) HandleListFlags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flaggedOnly := req.GetBool("flagged_only", false)
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListFlags(ctx, flaggedOnly, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list flags: %v", err)), nil
	}

	text, err := formatDecisionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decisions: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetNetworkFeed returns the recent purchases in a user's network.
func (h *Handlers) HandleGetNetworkFeed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user := req.GetString("user", "")
	if user == "" {
		return mcp.NewToolResultError("user is required"), nil
	}
	degree := req.GetInt("degree", 0)
	limit := req.GetInt("limit", 0)

	raw, err := h.client.GetFeed(ctx, user, degree, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get feed: %v", err)), nil
	}

	text, err := formatFeed(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse feed: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetNeighborhood lists the users within a degree of a user.
func (h *Handlers) HandleGetNeighborhood(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user := req.GetString("user", "")
	if user == "" {
		return mcp.NewToolResultError("user is required"), nil
	}
	degree := req.GetInt("degree", 0)

	raw, err := h.client.GetNeighborhood(ctx, user, degree)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get neighborhood: %v", err)), nil
	}

	text, err := formatNeighborhood(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse neighborhood: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetNetworkStats returns service statistics.
func (h *Handlers) HandleGetNetworkStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetNetworkStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get network stats: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// --- Formatting helpers ---

func formatCheckResult(raw json.RawMessage, user string, amount float64) (string, error) {
	var resp struct {
		Decision map[string]any `json:"decision"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	d := resp.Decision
	if d == nil {
		return "", fmt.Errorf("no decision in response")
	}

	flagged, _ := d["flagged"].(bool)
	refCount, _ := getFloat(d, "refCount")
	mean, _ := getFloat(d, "mean")
	stddev, _ := getFloat(d, "stddev")

	var sb strings.Builder
	if flagged {
		fmt.Fprintf(&sb, "ANOMALOUS: a %.2f purchase by user %s would be flagged.\n\n", amount, user)
	} else {
		fmt.Fprintf(&sb, "Normal: a %.2f purchase by user %s would not be flagged.\n\n", amount, user)
	}
	if refCount < 2 {
		sb.WriteString("The network has fewer than 2 reference purchases, so no purchase can be flagged.\n")
	} else {
		fmt.Fprintf(&sb, "Network mean: %.2f\n", mean)
		fmt.Fprintf(&sb, "Network stddev: %.2f\n", stddev)
		fmt.Fprintf(&sb, "Reference purchases: %.0f\n", refCount)
	}
	return sb.String(), nil
}

func formatDecisionList(raw json.RawMessage) (string, error) {
	var resp struct {
		Decisions []map[string]any `json:"decisions"`
		HasMore   bool             `json:"hasMore"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Decisions) == 0 {
		return "No evaluations found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d evaluation(s):\n\n", len(resp.Decisions))
	for i, d := range resp.Decisions {
		user := getString(d, "user")
		amount, _ := getFloat(d, "amount")
		flagged, _ := d["flagged"].(bool)
		ts := getString(d, "timestamp")

		verdict := "ok"
		if flagged {
			verdict = "FLAGGED"
		}
		fmt.Fprintf(&sb, "%d. user %s spent %.2f — %s\n", i+1, user, amount, verdict)
		if ts != "" {
			fmt.Fprintf(&sb, "   At: %s\n", ts)
		}
		if flagged {
			mean, _ := getFloat(d, "mean")
			stddev, _ := getFloat(d, "stddev")
			fmt.Fprintf(&sb, "   Network mean: %.2f | stddev: %.2f\n", mean, stddev)
		}
	}
	if resp.HasMore {
		sb.WriteString("\n(more results available)")
	}
	return sb.String(), nil
}

func formatFeed(raw json.RawMessage) (string, error) {
	var resp struct {
		User      string           `json:"user"`
		Degree    int              `json:"degree"`
		Purchases []map[string]any `json:"purchases"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Purchases) == 0 {
		return fmt.Sprintf("No purchases in user %s's network (degree %d).", resp.User, resp.Degree), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Recent purchases in user %s's network (degree %d):\n\n", resp.User, resp.Degree)
	for i, p := range resp.Purchases {
		user := getString(p, "user")
		amount, _ := getFloat(p, "amount")
		ts := getString(p, "timestamp")
		fmt.Fprintf(&sb, "%d. user %s spent %.2f at %s\n", i+1, user, amount, ts)
	}
	return sb.String(), nil
}

func formatNeighborhood(raw json.RawMessage) (string, error) {
	var resp struct {
		User      string   `json:"user"`
		Degree    int      `json:"degree"`
		Neighbors []string `json:"neighbors"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Neighbors) == 0 {
		return fmt.Sprintf("User %s has no one within %d hop(s).", resp.User, resp.Degree), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "User %s has %d user(s) within %d hop(s):\n", resp.User, len(resp.Neighbors), resp.Degree)
	sb.WriteString("  " + strings.Join(resp.Neighbors, ", "))
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
