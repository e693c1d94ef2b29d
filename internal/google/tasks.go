package google

import (
	"context"

	"google.golang.org/api/tasks/v1"

	"github.com/lewisedginton/organizer/internal/tools"
)

const defaultTaskList = "@default"

// Tasks implements tools.Tasks on the default task list.
type Tasks struct {
	svc *tasks.Service
}

func (t *Tasks) Create(ctx context.Context, title, notes string) (tools.Task, error) {
	created, err := t.svc.Tasks.Insert(defaultTaskList, &tasks.Task{Title: title, Notes: notes}).Context(ctx).Do()
	if err != nil {
		return tools.Task{}, classify("create task", err)
	}
	return tools.Task{Title: created.Title, Status: created.Status}, nil
}

func (t *Tasks) List(ctx context.Context, max int) ([]tools.Task, error) {
	call := t.svc.Tasks.List(defaultTaskList).Context(ctx)
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	res, err := call.Do()
	if err != nil {
		return nil, classify("list tasks", err)
	}
	out := make([]tools.Task, 0, len(res.Items))
	for _, item := range res.Items {
		out = append(out, tools.Task{Title: item.Title, Status: item.Status})
	}
	return out, nil
}
