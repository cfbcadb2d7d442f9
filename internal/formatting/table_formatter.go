package formatting

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"converge/internal/cluster"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// FormatTasks prints one row per task instance, sorted by task name.
func (f *TableFormatter) FormatTasks(tasks []cluster.TaskInstance) error {
	if len(tasks) == 0 {
		f.printEmpty("📋", "No tasks found")
		return nil
	}
	sorted := append([]cluster.TaskInstance(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	t := f.createTable()
	header := table.Row{"NAME", "POD", "HOST", "STATE"}
	if f.options.Wide {
		header = append(header, "ID", "AGENT", "CONTAINER")
	}
	t.AppendHeader(header)
	for _, task := range sorted {
		row := table.Row{task.Name, task.Pod, task.Host, stateText(task)}
		if f.options.Wide {
			row = append(row, task.ID, task.AgentID, task.ContainerID)
		}
		t.AppendRow(row)
	}
	t.Render()
	f.printTotal(len(sorted), "tasks")
	return nil
}

// FormatPlan prints the plan status followed by one row per step.
func (f *TableFormatter) FormatPlan(plan *cluster.Plan) error {
	fmt.Fprintf(f.options.Out, "%s plan: %s\n", plan.Name, statusText(plan.Status))
	for _, e := range plan.Errors {
		fmt.Fprintf(f.options.Out, "  %s %s\n", text.FgRed.Sprint("error:"), e)
	}
	if len(plan.Phases) == 0 {
		return nil
	}

	t := f.createTable()
	t.AppendHeader(table.Row{"PHASE", "STEP", "STATUS"})
	for _, phase := range plan.Phases {
		t.AppendRow(table.Row{phase.Name, "", statusText(phase.Status)})
		for _, step := range phase.Steps {
			t.AppendRow(table.Row{"", step.Name, statusText(step.Status)})
		}
	}
	t.Render()
	return nil
}

// FormatAppConfig prints the env of the app config as sorted key/value rows.
func (f *TableFormatter) FormatAppConfig(cfg cluster.AppConfig) error {
	if cfg.ID != "" {
		fmt.Fprintf(f.options.Out, "%s %s\n", text.FgHiBlue.Sprint("App:"), cfg.ID)
	}
	return f.formatObjectData(stringMap(cfg.Env))
}

// FormatData formats generic data using table logic
func (f *TableFormatter) FormatData(data interface{}) error {
	switch d := data.(type) {
	case map[string]interface{}:
		return f.formatObjectData(d)
	case map[string]string:
		return f.formatObjectData(stringMap(d))
	case []interface{}:
		return f.formatArrayData(d)
	case string:
		fmt.Fprintln(f.options.Out, d)
	default:
		fmt.Fprintln(f.options.Out, PrettyJSON(d))
	}
	return nil
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.options.Out)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) printEmpty(icon, message string) {
	fmt.Fprintf(f.options.Out, "%s %s\n", text.FgYellow.Sprint(icon), text.FgYellow.Sprint(message))
}

func (f *TableFormatter) printTotal(n int, noun string) {
	fmt.Fprintf(f.options.Out, "%s %s %s\n",
		text.FgHiBlue.Sprint("Total:"),
		text.FgHiWhite.Sprint(n),
		text.FgHiBlue.Sprint(noun))
}

// formatObjectData formats object data as key-value pairs
func (f *TableFormatter) formatObjectData(data map[string]interface{}) error {
	if len(data) == 0 {
		f.printEmpty("📋", "No fields found")
		return nil
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := f.createTable()
	t.AppendHeader(table.Row{"KEY", "VALUE"})
	for _, key := range keys {
		t.AppendRow(table.Row{key, truncate(fmt.Sprintf("%v", data[key]), 100)})
	}
	t.Render()
	return nil
}

// formatArrayData formats array data as a simple list
func (f *TableFormatter) formatArrayData(data []interface{}) error {
	if len(data) == 0 {
		f.printEmpty("📋", "No items found")
		return nil
	}
	for i, item := range data {
		fmt.Fprintf(f.options.Out, "  %d. %v\n", i+1, item)
	}
	f.printTotal(len(data), "items")
	return nil
}

func stringMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stateText(task cluster.TaskInstance) string {
	state := task.State
	if state == "" {
		state = "UNKNOWN"
	}
	if task.Running {
		return text.FgGreen.Sprint(state)
	}
	return text.FgRed.Sprint(state)
}

func statusText(s cluster.PlanStatus) string {
	switch s {
	case cluster.PlanComplete:
		return text.FgGreen.Sprint(string(s))
	case cluster.PlanError:
		return text.FgRed.Sprint(string(s))
	case cluster.PlanKickedOff, cluster.PlanInProgress:
		return text.FgYellow.Sprint(string(s))
	default:
		return string(s)
	}
}
