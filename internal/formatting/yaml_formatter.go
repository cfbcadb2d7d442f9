package formatting

import (
	"fmt"

	"sigs.k8s.io/yaml"

	"converge/internal/cluster"
)

// YAMLFormatter provides YAML output formatting. Values go through their
// JSON encoding first, so field names match the JSON output.
type YAMLFormatter struct {
	options Options
}

func (f *YAMLFormatter) FormatTasks(tasks []cluster.TaskInstance) error {
	if tasks == nil {
		tasks = []cluster.TaskInstance{}
	}
	return f.FormatData(tasks)
}

func (f *YAMLFormatter) FormatPlan(plan *cluster.Plan) error {
	if plan.Raw != nil {
		return f.FormatData(plan.Raw)
	}
	return f.FormatData(plan)
}

func (f *YAMLFormatter) FormatAppConfig(cfg cluster.AppConfig) error {
	return f.FormatData(cfg)
}

func (f *YAMLFormatter) FormatData(data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to format YAML: %w", err)
	}
	_, err = f.options.Out.Write(out)
	return err
}
