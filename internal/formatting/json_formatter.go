package formatting

import (
	"fmt"

	"converge/internal/cluster"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

func (f *JSONFormatter) FormatTasks(tasks []cluster.TaskInstance) error {
	if tasks == nil {
		tasks = []cluster.TaskInstance{}
	}
	return f.FormatData(tasks)
}

// FormatPlan prints the scheduler's own document when the backend kept it.
func (f *JSONFormatter) FormatPlan(plan *cluster.Plan) error {
	if plan.Raw != nil {
		return f.FormatData(plan.Raw)
	}
	return f.FormatData(plan)
}

func (f *JSONFormatter) FormatAppConfig(cfg cluster.AppConfig) error {
	return f.FormatData(cfg)
}

func (f *JSONFormatter) FormatData(data interface{}) error {
	out, err := marshalJSON(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.options.Out, string(out))
	return err
}
