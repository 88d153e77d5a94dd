package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/neilberkman/groupsum/internal/core/datefilter"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/search"
)

const timeFormat = "2006-01-02 15:04:05"

// ListGroupsArgs defines arguments for the list_groups tool
type ListGroupsArgs struct {
	AccountID   string `json:"account_id,omitempty"`
	Query       string `json:"query,omitempty"`
	IncludeLeft bool   `json:"include_left,omitempty"`
}

// ListSummariesArgs defines arguments for the list_summaries tool
type ListSummariesArgs struct {
	RoomID string `json:"room_id,omitempty"`
	Since  string `json:"since,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// GetRecentMessagesArgs defines arguments for the get_recent_messages tool
type GetRecentMessagesArgs struct {
	RoomID    string `json:"room_id"`
	AccountID string `json:"account_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// SearchMessagesArgs defines arguments for the search_messages tool
type SearchMessagesArgs struct {
	Query     string `json:"query"`
	RoomID    string `json:"room_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	After     string `json:"after_date,omitempty"`
	Before    string `json:"before_date,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// SyncStatusArgs defines arguments for the sync_status tool
type SyncStatusArgs struct {
	AccountID string `json:"account_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// GroupInfo represents a group in the list view
type GroupInfo struct {
	RoomID      string `json:"room_id"`
	AccountID   string `json:"account_id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
	Managed     bool   `json:"managed"`
	PendingSync bool   `json:"pending_sync"`
	LastSummary string `json:"last_summary,omitempty"`
}

// SummaryInfo represents one stored summary
type SummaryInfo struct {
	ID           int64  `json:"id"`
	RoomID       string `json:"room_id"`
	Text         string `json:"text"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	MessageCount int    `json:"message_count"`
	Model        string `json:"model"`
	CreatedAt    string `json:"created_at"`
}

// MessageDetail represents a single message in a group
type MessageDetail struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

// MessageMatch represents a message search result
type MessageMatch struct {
	RoomID    string `json:"room_id"`
	Group     string `json:"group"`
	Sender    string `json:"sender"`
	Snippet   string `json:"snippet"`
	Timestamp string `json:"timestamp"`
}

// SyncLogInfo represents one reconciliation pass
type SyncLogInfo struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Seen     int    `json:"seen"`
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Error    string `json:"error,omitempty"`
	SyncedAt string `json:"synced_at"`
}

type toolHandler = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StartServer starts the MCP server
func StartServer(dbPath, version string) error {
	database, err := db.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			log.Printf("Error closing database: %v", closeErr)
		}
	}()

	return server.ServeStdio(NewServer(database, version))
}

// NewServer registers the read-only tools over database.
func NewServer(database *db.DB, version string) *server.MCPServer {
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer("groupsum", version)

	listGroupsTool := mcp.NewTool("list_groups",
		mcp.WithDescription("List recorded chat groups with member counts and when each was last summarized"),
		mcp.WithString("account_id",
			mcp.Description("Only groups of this account")),
		mcp.WithString("query",
			mcp.Description("Filter by group name or room id")),
		mcp.WithBoolean("include_left",
			mcp.Description("Include groups the session has left")),
	)
	s.AddTool(listGroupsTool, makeListGroupsHandler(database))

	listSummariesTool := mcp.NewTool("list_summaries",
		mcp.WithDescription("Get generated group summaries, newest first"),
		mcp.WithString("room_id",
			mcp.Description("Only summaries of this room")),
		mcp.WithString("since",
			mcp.Description("Only summaries created since this date ('2025-04-01', 'yesterday', 'last week')")),
		mcp.WithNumber("limit",
			mcp.Description("Max summaries to return (default: 10)")),
	)
	s.AddTool(listSummariesTool, makeListSummariesHandler(database))

	recentTool := mcp.NewTool("get_recent_messages",
		mcp.WithDescription("Get the most recent messages of a group, oldest first"),
		mcp.WithString("room_id",
			mcp.Required(),
			mcp.Description("Room id of the group")),
		mcp.WithString("account_id",
			mcp.Description("Account id (default: the only recorded account)")),
		mcp.WithNumber("limit",
			mcp.Description("Max messages to return (default: 50)")),
	)
	s.AddTool(recentTool, makeGetRecentMessagesHandler(database))

	searchTool := mcp.NewTool("search_messages",
		mcp.WithDescription("Search recorded group messages by content, newest first. Supports room and date filtering."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to find in message content")),
		mcp.WithString("room_id",
			mcp.Description("Only messages of this room")),
		mcp.WithString("account_id",
			mcp.Description("Only messages of this account")),
		mcp.WithString("after_date",
			mcp.Description("Only messages at or after this date ('2025-04-01', 'yesterday')")),
		mcp.WithString("before_date",
			mcp.Description("Only messages before this date")),
		mcp.WithNumber("limit",
			mcp.Description("Max results to return (default: 20)")),
	)
	s.AddTool(searchTool, makeSearchMessagesHandler(database))

	statusTool := mcp.NewTool("sync_status",
		mcp.WithDescription("Show database totals and the latest group list reconciliations"),
		mcp.WithString("account_id",
			mcp.Description("Account id (default: the only recorded account)")),
		mcp.WithNumber("limit",
			mcp.Description("Max sync log entries (default: 5)")),
	)
	s.AddTool(statusTool, makeSyncStatusHandler(database))

	return s
}

func decodeArgs(request mcp.CallToolRequest, out any) error {
	argsBytes, _ := json.Marshal(request.Params.Arguments)
	return json.Unmarshal(argsBytes, out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func defaultAccount(ctx context.Context, database *db.DB, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	ids, err := database.ListAccounts(ctx)
	if err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", fmt.Errorf("account_id is required when %d accounts are recorded", len(ids))
	}
	return ids[0], nil
}

func makeListGroupsHandler(database *db.DB) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListGroupsArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		groups, err := database.ListGroups(ctx, db.GroupFilter{
			AccountID:        args.AccountID,
			IncludeUnmanaged: args.IncludeLeft,
			Query:            args.Query,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}

		out := []GroupInfo{}
		for _, g := range groups {
			out = append(out, GroupInfo{
				RoomID:      g.RoomID,
				AccountID:   g.AccountID,
				Name:        g.Name,
				MemberCount: g.MemberCount,
				Managed:     g.Managed,
				PendingSync: g.IsPlaceholder(),
				LastSummary: formatTime(g.LastSummaryTime),
			})
		}
		return jsonResult(map[string]any{"groups": out})
	}
}

func makeListSummariesHandler(database *db.DB) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListSummariesArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		f := db.SummaryFilter{RoomID: args.RoomID, Limit: args.Limit}
		if f.Limit == 0 {
			f.Limit = 10
		}
		if args.Since != "" {
			t, err := datefilter.Parse(args.Since, time.Now())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			f.Since = t
		}

		list, err := database.ListSummaries(ctx, f)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}

		out := []SummaryInfo{}
		for _, s := range list {
			out = append(out, SummaryInfo{
				ID:           s.ID,
				RoomID:       s.RoomID,
				Text:         s.Text,
				StartTime:    formatTime(s.StartTime),
				EndTime:      formatTime(s.EndTime),
				MessageCount: s.MessageCount,
				Model:        s.Model,
				CreatedAt:    formatTime(s.CreatedAt),
			})
		}
		return jsonResult(map[string]any{"summaries": out})
	}
}

func makeGetRecentMessagesHandler(database *db.DB) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GetRecentMessagesArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if args.RoomID == "" {
			return mcp.NewToolResultError("room_id is required"), nil
		}
		limit := args.Limit
		if limit == 0 {
			limit = 50
		}

		account, err := defaultAccount(ctx, database, args.AccountID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		g, err := database.GetGroup(ctx, args.RoomID, account)
		if errors.Is(err, db.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("group %s not found", args.RoomID)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}

		msgs, err := database.ListRecentMessages(ctx, args.RoomID, account, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}

		out := []MessageDetail{}
		for _, m := range msgs {
			out = append(out, MessageDetail{
				Sender:    m.SenderName,
				Content:   m.Content,
				Kind:      string(m.Kind),
				Timestamp: formatTime(m.Timestamp),
			})
		}
		return jsonResult(map[string]any{
			"group":    g.Name,
			"messages": out,
		})
	}
}

func makeSearchMessagesHandler(database *db.DB) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SearchMessagesArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		f := search.Filters{
			Query:     args.Query,
			RoomID:    args.RoomID,
			AccountID: args.AccountID,
			Limit:     args.Limit,
		}
		if f.Limit == 0 {
			f.Limit = 20
		}
		now := time.Now()
		for _, d := range []struct {
			in  string
			out *time.Time
		}{{args.After, &f.Since}, {args.Before, &f.Before}} {
			if d.in == "" {
				continue
			}
			t, err := datefilter.Parse(d.in, now)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			*d.out = t
		}

		results, err := search.Search(ctx, database, f)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}

		out := []MessageMatch{}
		for _, r := range results {
			out = append(out, MessageMatch{
				RoomID:    r.RoomID,
				Group:     r.GroupName,
				Sender:    r.SenderName,
				Snippet:   r.Snippet,
				Timestamp: formatTime(r.Timestamp),
			})
		}
		return jsonResult(map[string]any{"messages": out})
	}
}

func makeSyncStatusHandler(database *db.DB) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SyncStatusArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		limit := args.Limit
		if limit == 0 {
			limit = 5
		}

		stats, err := database.GetStats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		result := map[string]any{
			"groups":         stats.TotalGroups,
			"managed_groups": stats.ManagedGroups,
			"pending_groups": stats.PendingGroups,
			"messages":       stats.TotalMessages,
			"summaries":      stats.TotalSummaries,
			"last_sync":      formatTime(stats.LastSync),
		}

		account, err := defaultAccount(ctx, database, args.AccountID)
		if err != nil {
			return jsonResult(result)
		}
		logs, err := database.ListSyncLogs(ctx, account, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		out := []SyncLogInfo{}
		for _, l := range logs {
			out = append(out, SyncLogInfo{
				Type:     string(l.Type),
				Status:   string(l.Status),
				Seen:     l.GroupsSeen,
				Inserted: l.GroupsInserted,
				Updated:  l.GroupsUpdated,
				Error:    l.ErrorMessage,
				SyncedAt: formatTime(l.SyncedAt),
			})
		}
		result["account_id"] = account
		result["sync_logs"] = out
		return jsonResult(result)
	}
}
