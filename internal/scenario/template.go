package scenario

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"converge/internal/properties"
)

// templateData is what step templates are rendered with.
type templateData struct {
	// Service is the configured service name, e.g. "/test/integration/hdfs".
	Service string
	// ZKPath is the service's ZooKeeper node suffix.
	ZKPath string
	// Env is the app config env captured at scenario start.
	Env map[string]string
}

// templateFuncs returns the sprig functions plus helpers bound to service:
//
//	autoip "journal-0-node" 8485  -> journal-0-node.<svc>.autoip.dcos.thisdcos.directory:8485
//	zkpath                        -> test__integration__hdfs
func templateFuncs(service string) template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["autoip"] = func(task string, port int) string {
		return properties.AutoIPHost(service, task, port)
	}
	funcs["zkpath"] = func() string {
		return properties.ZKServicePath(service)
	}
	return funcs
}

// parseTemplate parses text with the step functions. The service only
// matters at execution, so validation passes an empty one.
func parseTemplate(service, text string) (*template.Template, error) {
	return template.New("value").Funcs(templateFuncs(service)).Option("missingkey=error").Parse(text)
}

// render expands text against data. Text without actions is returned as is.
func render(text string, data templateData) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := parseTemplate(data.Service, text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", text, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", text, err)
	}
	return buf.String(), nil
}

// renderMap expands every value of m.
func renderMap(m map[string]string, data templateData) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		r, err := render(v, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = r
	}
	return out, nil
}
