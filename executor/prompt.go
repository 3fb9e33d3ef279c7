package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/taskmesh/core"
)

// Prompt renders a task into a single instruction for an LLM-backed
// executor: the description, followed by one line per parameter in sorted
// key order.
func Prompt(task *core.Task) string {
	if len(task.Params) == 0 {
		return task.Description
	}

	keys := make([]string, 0, len(task.Params))
	for k := range task.Params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var sb strings.Builder

	sb.WriteString(task.Description)
	sb.WriteString("\n\nParameters:")

	for _, k := range keys {
		fmt.Fprintf(&sb, "\n- %s: %v", k, task.Params[k])
	}

	return sb.String()
}
