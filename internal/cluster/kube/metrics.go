package kube

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"k8s.io/apimachinery/pkg/util/wait"

	"converge/pkg/logging"
)

// countSamples parses a Prometheus text exposition and returns the number
// of samples in it.
func countSamples(data []byte) (int, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range families {
		n += len(f.GetMetric())
	}
	return n, nil
}

// WaitForAnyMetric implements cluster.Metrics by scraping the first running
// task matching taskPrefix through the API server's pod proxy until it
// exposes at least one sample.
func (c *Cluster) WaitForAnyMetric(ctx context.Context, service, taskPrefix string, timeout time.Duration) error {
	port := strconv.Itoa(c.opts.MetricsPort)
	var last string
	err := wait.PollUntilContextTimeout(ctx, c.opts.PollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		tasks, err := c.ListTaskInstances(ctx, service, taskPrefix)
		if err != nil {
			last = err.Error()
			return false, nil
		}
		for _, t := range tasks {
			if !t.Running || t.AgentID == "" {
				continue
			}
			resp := c.clientset.CoreV1().Pods(c.opts.Namespace).ProxyGet("http", t.AgentID, port, "/metrics", nil)
			if resp == nil {
				last = fmt.Sprintf("no proxy response from %s", t.AgentID)
				return false, nil
			}
			data, err := resp.DoRaw(ctx)
			if err != nil {
				last = err.Error()
				return false, nil
			}
			n, err := countSamples(data)
			if err != nil {
				last = fmt.Sprintf("%s: %v", t.AgentID, err)
				return false, nil
			}
			if n > 0 {
				logging.Debug("Kube", "%s exposes %d samples", t.Name, n)
				return true, nil
			}
			last = fmt.Sprintf("%s exposed no samples", t.Name)
			return false, nil
		}
		last = fmt.Sprintf("no running task matching %q", taskPrefix)
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("no metrics for %s within %v (last: %s)", taskPrefix, timeout, last)
	}
	return nil
}
