// Package report renders operator-facing views of orchestrator state.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/swarmlab/swarm/internal/domain"
)

// QueueItem is one row of the approval queue.
type QueueItem struct {
	TaskID        string          `json:"taskId"`
	Target        string          `json:"target"`
	Priority      domain.Priority `json:"priority"`
	Task          string          `json:"task"`
	ReviewerGroup string          `json:"reviewerGroup"`
	MatchedRules  []string        `json:"matchedRules,omitempty"`
	RequestedAt   int64           `json:"requestedAt"`
	AgeMs         int64           `json:"ageMs"`
}

// ApprovalQueue extracts tasks still waiting for review, ordered by
// priority and then by how long they have waited (oldest first).
func ApprovalQueue(recs []domain.TaskRecord, nowMs int64) []QueueItem {
	var items []QueueItem
	for _, rec := range recs {
		if rec.Status != domain.StatusAwaitingApproval || rec.Approval == nil {
			continue
		}
		if rec.Approval.Status != domain.ApprovalPending {
			continue
		}
		items = append(items, QueueItem{
			TaskID:        rec.TaskID,
			Target:        rec.Target,
			Priority:      rec.Request.Priority,
			Task:          truncate(rec.Request.Task, 80),
			ReviewerGroup: rec.Approval.ReviewerGroup,
			MatchedRules:  rec.Approval.MatchedRules,
			RequestedAt:   rec.Approval.RequestedAt,
			AgeMs:         nowMs - rec.Approval.RequestedAt,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority.Rank() != items[j].Priority.Rank() {
			return items[i].Priority.Rank() < items[j].Priority.Rank()
		}
		return items[i].AgeMs > items[j].AgeMs
	})
	return items
}

// WriteJSON renders the queue as indented JSON.
func WriteJSON(w io.Writer, items []QueueItem) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// WriteTable renders the queue as an aligned terminal table.
func WriteTable(w io.Writer, items []QueueItem) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Task", "Priority", "Reviewer", "Target", "Waiting", "Summary"})
	for _, it := range items {
		t.AppendRow(table.Row{
			shortID(it.TaskID), it.Priority, it.ReviewerGroup, it.Target,
			formatAge(it.AgeMs), it.Task,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

// WriteMarkdown renders the queue as a markdown table for chat or docs.
func WriteMarkdown(w io.Writer, items []QueueItem) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Task", "Priority", "Reviewer", "Target", "Waiting", "Summary"})
	for _, it := range items {
		t.AppendRow(table.Row{
			shortID(it.TaskID), it.Priority, it.ReviewerGroup, it.Target,
			formatAge(it.AgeMs), it.Task,
		})
	}
	t.RenderMarkdown()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatAge(ms int64) string {
	switch {
	case ms < 0:
		return "0s"
	case ms < 60_000:
		return fmt.Sprintf("%ds", ms/1000)
	case ms < 3_600_000:
		return fmt.Sprintf("%dm", ms/60_000)
	default:
		return fmt.Sprintf("%dh%dm", ms/3_600_000, (ms%3_600_000)/60_000)
	}
}
