package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	blockRe         = regexp.MustCompile("(?s)```(?:tasks|query)[ \t]*\\n(.*?)```")
	headerRe        = regexp.MustCompile(`(?m)^##\s+(.+)$`)
	groupBySimpleRe = regexp.MustCompile(`(?m)^\s*group by (\w+)`)
	dateFilterRe    = regexp.MustCompile(`(?m)^\s*(due|deadline)\s+((?:today|tomorrow|yesterday)(?:\s+or\s+(?:today|tomorrow|yesterday))*|before\s+\S+|after\s+\S+|on\s+\S+(?:\s+or\s+\S+)*)`)
	sortByRe        = regexp.MustCompile(`(?m)^\s*sort by (\w+)`)
	limitRe         = regexp.MustCompile(`(?m)^\s*limit (\d+)`)
	tagFilterRe     = regexp.MustCompile(`(?m)^\s*tag #?(\S+)`)
	stateFilterRe   = regexp.MustCompile(`(?m)^\s*state (.+)$`)
	pageFilterRe    = regexp.MustCompile(`(?m)^\s*page (.+)$`)
	pathIncludesRe  = regexp.MustCompile(`(?m)^\s*path includes (.+)$`)
)

// TaskResult is a stored record decorated with where it came from
type TaskResult struct {
	TaskRecord
	Page string
	Pos  int
}

func (r TaskResult) MarshalJSON() ([]byte, error) {
	out := r.TaskRecord.fields()
	out["page"] = r.Page
	out["pos"] = r.Pos
	return json.Marshal(out)
}

// DateFilter represents a date-based filter
type DateFilter struct {
	Operator string
	Date     string
	Dates    []string
}

// Query represents parsed query options
type Query struct {
	Name         string
	Done         *bool
	HasDeadline  *bool
	DateFilters  []DateFilter
	Tags         []string
	States       []string
	Page         string
	PathIncludes string
	GroupBy      string
	SortBy       string
	Limit        int
}

// TaskGroup represents a group of tasks
type TaskGroup struct {
	Name  string
	Tasks []TaskResult
}

// QuerySection represents a section with its query and results
type QuerySection struct {
	Name   string
	Query  *Query
	Groups []TaskGroup
	Tasks  []TaskResult
}

// OrderedMap maintains insertion order for keys
type OrderedMap[K cmp.Ordered, V any] struct {
	data  map[K]V
	order []K
}

func NewOrderedMap[K cmp.Ordered, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{
		data: make(map[K]V),
	}
}

func (m *OrderedMap[K, V]) Set(key K, value V) {
	if _, exists := m.data[key]; !exists {
		m.order = append(m.order, key)
	}
	m.data[key] = value
}

func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *OrderedMap[K, V]) Keys() []K {
	return m.order
}

// parseAllQueryBlocks parses all ```tasks and ```query blocks from a file
func parseAllQueryBlocks(filePath string) ([]*Query, error) {
	content, err := os.ReadFile(filePath)

	if err != nil {
		return nil, err
	}

	return parseQueryBlocks(string(content), filePath)
}

func parseQueryBlocks(content, source string) ([]*Query, error) {
	matches := blockRe.FindAllStringSubmatchIndex(content, -1)

	if matches == nil {
		return nil, fmt.Errorf("no ```tasks block found in %s", source)
	}

	headers := headerRe.FindAllStringSubmatchIndex(content, -1)

	var queries []*Query

	for _, match := range matches {
		blockStart := match[0]
		queryContent := content[match[2]:match[3]]

		sectionName := ""

		for _, header := range headers {
			if header[1] < blockStart {
				sectionName = content[header[2]:header[3]]
			} else {
				break
			}
		}

		query := ParseQuery(queryContent)
		query.Name = sectionName
		queries = append(queries, query)
	}

	return queries, nil
}

// ParseQuery parses the content of a single query block, one clause per line
func ParseQuery(queryContent string) *Query {
	query := &Query{}

	for _, line := range strings.Split(queryContent, "\n") {
		switch strings.TrimSpace(line) {
		case "not done":
			query.Done = boolPtr(false)
		case "done":
			query.Done = boolPtr(true)
		case "has due", "has deadline":
			query.HasDeadline = boolPtr(true)
		case "no due", "no deadline":
			query.HasDeadline = boolPtr(false)
		}
	}

	for _, dm := range dateFilterRe.FindAllStringSubmatch(queryContent, -1) {
		query.DateFilters = append(query.DateFilters, parseDateFilter(dm[2]))
	}

	for _, m := range tagFilterRe.FindAllStringSubmatch(queryContent, -1) {
		query.Tags = append(query.Tags, m[1])
	}

	for _, m := range stateFilterRe.FindAllStringSubmatch(queryContent, -1) {
		query.States = append(query.States, unquoteState(m[1]))
	}

	if m := pageFilterRe.FindStringSubmatch(queryContent); m != nil {
		query.Page = strings.TrimSpace(m[1])
	}

	if m := pathIncludesRe.FindStringSubmatch(queryContent); m != nil {
		query.PathIncludes = strings.TrimSpace(m[1])
	}

	if m := groupBySimpleRe.FindStringSubmatch(queryContent); m != nil {
		query.GroupBy = m[1]
	}

	if m := sortByRe.FindStringSubmatch(queryContent); m != nil {
		query.SortBy = m[1]
	}

	if m := limitRe.FindStringSubmatch(queryContent); m != nil {
		query.Limit, _ = strconv.Atoi(m[1])
	}

	return query
}

// unquoteState lets `state " "` select the blank state
func unquoteState(raw string) string {
	if s, err := strconv.Unquote(strings.TrimSpace(raw)); err == nil {
		return s
	}
	return strings.TrimSpace(raw)
}

func parseDateFilter(operand string) DateFilter {
	var op, date string
	var dates []string

	switch {
	case strings.HasPrefix(operand, "before "):
		op = "before"
		date = strings.TrimSpace(strings.TrimPrefix(operand, "before "))
	case strings.HasPrefix(operand, "after "):
		op = "after"
		date = strings.TrimSpace(strings.TrimPrefix(operand, "after "))
	case strings.HasPrefix(operand, "on "):
		op = "on"
		dates = splitOrDates(strings.TrimSpace(strings.TrimPrefix(operand, "on ")))
	default:
		op = "on"
		dates = splitOrDates(operand)
	}

	if len(dates) == 1 {
		date = dates[0]
		dates = nil
	}

	return DateFilter{Operator: op, Date: date, Dates: dates}
}

func splitOrDates(value string) []string {
	parts := strings.Split(value, " or ")

	var dates []string

	for _, part := range parts {
		part = strings.TrimSpace(part)

		if part != "" {
			dates = append(dates, part)
		}
	}
	return dates
}

func boolPtr(b bool) *bool {
	return &b
}

// startOfDay returns the time truncated to midnight UTC
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// resolveDate converts relative date strings to actual dates
func resolveDate(dateStr string) time.Time {
	today := startOfDay(time.Now())

	switch dateStr {
	case "today":
		return today
	case "tomorrow":
		return today.AddDate(0, 0, 1)
	case "yesterday":
		return today.AddDate(0, 0, -1)
	default:
		if parsed, err := time.Parse("2006-01-02", dateStr); err == nil {
			return parsed
		}
		return today
	}
}

func compareDate(op string, taskDate, target time.Time) bool {
	switch op {
	case "on":
		return taskDate.Equal(target)
	case "before":
		return taskDate.Before(target)
	case "after":
		return taskDate.After(target)
	default:
		return true
	}
}

// matchDateFilter checks if a task's deadline matches a date filter
func matchDateFilter(task TaskResult, filter DateFilter) bool {
	deadline, err := time.Parse("2006-01-02", task.Deadline)
	if err != nil {
		return false
	}

	if len(filter.Dates) > 0 {
		for _, date := range filter.Dates {
			if compareDate(filter.Operator, deadline, resolveDate(date)) {
				return true
			}
		}
		return false
	}

	return compareDate(filter.Operator, deadline, resolveDate(filter.Date))
}

func (q *Query) matches(task TaskResult) bool {
	if q.Done != nil && task.Done != *q.Done {
		return false
	}
	if q.HasDeadline != nil && (task.Deadline != "") != *q.HasDeadline {
		return false
	}
	for _, filter := range q.DateFilters {
		if !matchDateFilter(task, filter) {
			return false
		}
	}
	for _, tag := range q.Tags {
		if !slices.Contains(task.Tags, tag) {
			return false
		}
	}
	if len(q.States) > 0 && !slices.Contains(q.States, task.State) {
		return false
	}
	if q.Page != "" && task.Page != q.Page {
		return false
	}
	if q.PathIncludes != "" && !strings.Contains(task.Page, q.PathIncludes) {
		return false
	}
	return true
}

// ApplyQuery filters, sorts and limits results. A nil query returns everything.
func ApplyQuery(query *Query, tasks []TaskResult) []TaskResult {
	if query == nil {
		return tasks
	}

	filtered := sortTasks(Filter(tasks, query.matches), query.SortBy)

	if query.Limit > 0 && len(filtered) > query.Limit {
		filtered = filtered[:query.Limit]
	}

	return filtered
}

// sortTasks sorts tasks by the specified field (stable sort preserves original order for equal elements)
func sortTasks(tasks []TaskResult, sortBy string) []TaskResult {
	if sortBy == "" {
		return tasks
	}

	sorted := slices.Clone(tasks)

	switch sortBy {
	case "name":
		slices.SortStableFunc(sorted, func(a, b TaskResult) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	case "page":
		slices.SortStableFunc(sorted, func(a, b TaskResult) int {
			return cmp.Or(cmp.Compare(a.Page, b.Page), cmp.Compare(a.Pos, b.Pos))
		})
	case "state":
		slices.SortStableFunc(sorted, func(a, b TaskResult) int {
			return cmp.Compare(a.State, b.State)
		})
	case "pos":
		slices.SortStableFunc(sorted, func(a, b TaskResult) int {
			return cmp.Compare(a.Pos, b.Pos)
		})
	case "due", "deadline":
		slices.SortStableFunc(sorted, func(a, b TaskResult) int {
			// Tasks without deadlines go to the end
			switch {
			case a.Deadline == "" && b.Deadline == "":
				return 0
			case a.Deadline == "":
				return 1
			case b.Deadline == "":
				return -1
			}
			return cmp.Compare(a.Deadline, b.Deadline)
		})
	}

	return sorted
}

// groupTasks groups tasks by the specified field, preserving their order
func groupTasks(tasks []TaskResult, groupBy string) []TaskGroup {
	if groupBy == "" {
		return []TaskGroup{{Name: "", Tasks: tasks}}
	}

	groups := NewOrderedMap[string, []TaskResult]()

	for _, task := range tasks {
		var key string

		switch groupBy {
		case "page", "filename":
			key = task.Page
		case "folder":
			key = path.Dir(task.Page)
			if key == "." {
				key = "/"
			}
		case "state":
			key = "[" + task.State + "]"
		}

		existing, _ := groups.Get(key)
		groups.Set(key, append(existing, task))
	}

	result := make([]TaskGroup, 0, len(groups.Keys()))

	for _, name := range groups.Keys() {
		groupTasks, _ := groups.Get(name)
		result = append(result, TaskGroup{Name: name, Tasks: groupTasks})
	}

	return result
}

// resolveQuery determines if input is a file path or inline query string
// and returns parsed queries accordingly
func resolveQuery(input string, vaultPath string) ([]*Query, error) {
	if strings.TrimSpace(input) == "" {
		return []*Query{{}}, nil
	}

	filePath, err := resolveQueryPath(input, vaultPath)
	if err != nil {
		return parseInlineQuery(input)
	}

	if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
		return parseAllQueryBlocks(filePath)
	}

	return parseInlineQuery(input)
}

// parseInlineQuery parses an inline query string like "not done" or "due today".
// Semicolons separate clauses.
func parseInlineQuery(queryStr string) ([]*Query, error) {
	query := ParseQuery(strings.ReplaceAll(queryStr, ";", "\n"))
	return []*Query{query}, nil
}

// Filter returns elements from slice that satisfy the predicate
func Filter[T any](slice []T, predicate func(T) bool) []T {
	var result []T
	for _, v := range slice {
		if predicate(v) {
			result = append(result, v)
		}
	}
	return result
}
