package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the peerflag MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolCheckPurchase = mcp.NewTool("check_purchase",
	mcp.WithDescription(
		"Evaluate a hypothetical purchase against a user's social network without recording it. "+
			"Returns whether the amount would be flagged as anomalous, along with the mean and "+
			"standard deviation of the network's recent purchases. "+
			"Use this to preview how the detector would score an amount."),
	mcp.WithString("user",
		mcp.Required(),
		mcp.Description("The user ID making the purchase (e.g. '7')")),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("The purchase amount to evaluate (e.g. 1093.42)")),
)

var ToolGetUserFlags = mcp.NewTool("get_user_flags",
	mcp.WithDescription(
		"Get the evaluation history for one user: every streamed purchase they made "+
			"and whether it was flagged as anomalous relative to their network."),
	mcp.WithString("user",
		mcp.Required(),
		mcp.Description("The user ID to look up (e.g. '7')")),
	mcp.WithBoolean("flagged_only",
		mcp.Description("Only return purchases that were flagged as anomalous")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of decisions to return (default 20)")),
)

var ToolListFlags = mcp.NewTool("list_flags",
	mcp.WithDescription(
		"List recent purchase evaluations across all users, newest first. "+
			"Use flagged_only to see only anomalous purchases."),
	mcp.WithBoolean("flagged_only",
		mcp.Description("Only return purchases that were flagged as anomalous")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of decisions to return (default 20)")),
)

var ToolGetNetworkFeed = mcp.NewTool("get_network_feed",
	mcp.WithDescription(
		"Get the most recent purchases made by users in someone's social network, "+
			"ordered newest first. This is the reference set the anomaly detector "+
			"compares new purchases against."),
	mcp.WithString("user",
		mcp.Required(),
		mcp.Description("The user whose network to inspect (e.g. '7')")),
	mcp.WithNumber("degree",
		mcp.Description("How many friendship hops to include (default: service configuration)")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of purchases to return (default: service configuration)")),
)

var ToolGetNeighborhood = mcp.NewTool("get_neighborhood",
	mcp.WithDescription(
		"List all users within a given number of friendship hops of a user. "+
			"The user themselves is not included."),
	mcp.WithString("user",
		mcp.Required(),
		mcp.Description("The user whose neighborhood to inspect (e.g. '7')")),
	mcp.WithNumber("degree",
		mcp.Description("How many friendship hops to include (default: service configuration)")),
)

var ToolGetNetworkStats = mcp.NewTool("get_network_stats",
	mcp.WithDescription(
		"Get service-wide statistics: users, friendships, recorded purchases, "+
			"flagged purchases, and detector parameters."),
)
