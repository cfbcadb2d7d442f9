package kube

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

// ConfigHashAnnotation is stamped on the pod templates of the service's
// StatefulSets; changing it rolls the pods.
const ConfigHashAnnotation = "converge.io/config-hash"

// GetAppConfig implements cluster.ConfigPlane. The app config is the data of
// the service's ConfigMap.
func (c *Cluster) GetAppConfig(ctx context.Context, service string) (cluster.AppConfig, error) {
	var cm corev1.ConfigMap
	key := client.ObjectKey{Namespace: c.opts.Namespace, Name: c.configMapName(service)}
	if err := c.client.Get(ctx, key, &cm); err != nil {
		return cluster.AppConfig{}, fmt.Errorf("failed to get app config of %s: %w", service, err)
	}
	cfg := cluster.AppConfig{
		ID:  key.String(),
		Env: make(map[string]string, len(cm.Data)),
		Raw: map[string]interface{}{
			"name":            cm.Name,
			"resourceVersion": cm.ResourceVersion,
		},
	}
	for k, v := range cm.Data {
		cfg.Env[k] = v
	}
	return cfg, nil
}

// UpdateAppConfig implements cluster.ConfigPlane. It replaces the ConfigMap
// data and stamps the data hash on every StatefulSet template so the
// controller rolls the pods. It returns once the API server accepted both
// writes; the rollout itself shows up in the deploy plan.
func (c *Cluster) UpdateAppConfig(ctx context.Context, service string, cfg cluster.AppConfig, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key := client.ObjectKey{Namespace: c.opts.Namespace, Name: c.configMapName(service)}
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var cm corev1.ConfigMap
		if err := c.client.Get(ctx, key, &cm); err != nil {
			return err
		}
		cm.Data = make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			cm.Data[k] = v
		}
		return c.client.Update(ctx, &cm)
	})
	if err != nil {
		return fmt.Errorf("failed to update app config of %s: %w", service, err)
	}

	hash := configHash(cfg.Env)
	sets, err := c.listStatefulSets(ctx, service)
	if err != nil {
		return err
	}
	for i := range sets {
		sts := &sets[i]
		if sts.Spec.Template.Annotations[ConfigHashAnnotation] == hash {
			continue
		}
		patch := client.MergeFrom(sts.DeepCopy())
		if sts.Spec.Template.Annotations == nil {
			sts.Spec.Template.Annotations = map[string]string{}
		}
		sts.Spec.Template.Annotations[ConfigHashAnnotation] = hash
		if err := c.client.Patch(ctx, sts, patch); err != nil {
			return fmt.Errorf("failed to roll statefulset %s: %w", sts.Name, err)
		}
		logging.Debug("Kube", "Stamped config hash %s on %s", hash, sts.Name)
	}
	logging.Info("Kube", "Updated app config %s (%d keys)", key, len(cfg.Env))
	return nil
}

// configHash is a stable digest of the config data.
func configHash(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, env[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
