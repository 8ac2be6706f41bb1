package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TaskProvider serves indexed tasks to queries
type TaskProvider struct {
	index IndexStore
}

func NewTaskProvider(index IndexStore) *TaskProvider {
	return &TaskProvider{index: index}
}

// All returns every indexed task decorated with its page and position,
// ordered by page then position.
func (p *TaskProvider) All() ([]TaskResult, error) {
	entries, err := p.index.QueryPrefix(taskKeyPrefix)
	if err != nil {
		return nil, err
	}

	results := make([]TaskResult, 0, len(entries))
	for _, entry := range entries {
		pos, err := strconv.Atoi(strings.TrimPrefix(entry.Key, taskKeyPrefix))
		if err != nil {
			continue
		}

		var rec TaskRecord
		if err := json.Unmarshal(entry.Value, &rec); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", entry.Page, entry.Key, err)
		}

		results = append(results, TaskResult{TaskRecord: rec, Page: entry.Page, Pos: pos})
	}

	return sortTasks(results, "page"), nil
}

// Query runs a query over every indexed task
func (p *TaskProvider) Query(query *Query) ([]TaskResult, error) {
	all, err := p.All()
	if err != nil {
		return nil, err
	}
	return ApplyQuery(query, all), nil
}

// Sections evaluates each query into a grouped section
func (p *TaskProvider) Sections(queries []*Query) ([]QuerySection, error) {
	all, err := p.All()
	if err != nil {
		return nil, err
	}

	sections := make([]QuerySection, 0, len(queries))
	for _, query := range queries {
		tasks := ApplyQuery(query, all)
		sections = append(sections, QuerySection{
			Name:   query.Name,
			Query:  query,
			Groups: groupTasks(tasks, query.GroupBy),
			Tasks:  tasks,
		})
	}

	return sections, nil
}
