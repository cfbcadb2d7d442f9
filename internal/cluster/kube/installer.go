package kube

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/wait"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

// manifestData is what manifest templates are rendered with.
type manifestData struct {
	Service   string
	Name      string
	Namespace string
	Package   string
	Version   string
	Options   map[string]interface{}
}

// renderManifests renders every manifest file as a template and splits the
// result into objects.
func (c *Cluster) renderManifests(service string, pkg cluster.Package) ([]*unstructured.Unstructured, error) {
	if len(c.opts.Manifests) == 0 {
		return nil, fmt.Errorf("no manifests configured")
	}
	data := manifestData{
		Service:   service,
		Name:      baseName(service),
		Namespace: c.opts.Namespace,
		Package:   pkg.Name,
		Version:   pkg.Version,
		Options:   pkg.Options,
	}
	var objs []*unstructured.Unstructured
	for _, path := range c.opts.Manifests {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
		}
		docs, err := decodeManifest(path, raw, data)
		if err != nil {
			return nil, err
		}
		objs = append(objs, docs...)
	}
	return objs, nil
}

func decodeManifest(path string, raw []byte, data manifestData) ([]*unstructured.Unstructured, error) {
	tmpl, err := template.New(path).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, data); err != nil {
		return nil, fmt.Errorf("failed to render manifest %s: %w", path, err)
	}

	var objs []*unstructured.Unstructured
	reader := utilyaml.NewYAMLReader(bufio.NewReader(&rendered))
	for i := 0; ; i++ {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to split manifest %s: %w", path, err)
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}
		js, err := yaml.YAMLToJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("manifest %s document %d: %w", path, i, err)
		}
		if string(js) == "null" {
			continue
		}
		obj := &unstructured.Unstructured{}
		if err := obj.UnmarshalJSON(js); err != nil {
			return nil, fmt.Errorf("manifest %s document %d: %w", path, i, err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// prepare labels obj with the instance label and defaults the namespace of
// namespaced kinds.
func (c *Cluster) prepare(service string, obj *unstructured.Unstructured) {
	labels := obj.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}
	labels[c.opts.InstanceLabel] = baseName(service)
	obj.SetLabels(labels)
	if obj.GetNamespace() == "" {
		if namespaced, err := c.client.IsObjectNamespaced(obj); err == nil && namespaced {
			obj.SetNamespace(c.opts.Namespace)
		}
	}
}

// apply creates obj or, when it exists, updates it in place.
func (c *Cluster) apply(ctx context.Context, obj *unstructured.Unstructured) error {
	err := c.client.Create(ctx, obj)
	if !apierrors.IsAlreadyExists(err) {
		return err
	}
	existing := &unstructured.Unstructured{}
	existing.SetGroupVersionKind(obj.GroupVersionKind())
	if err := c.client.Get(ctx, client.ObjectKeyFromObject(obj), existing); err != nil {
		return err
	}
	obj.SetResourceVersion(existing.GetResourceVersion())
	return c.client.Update(ctx, obj)
}

func (c *Cluster) applyAll(ctx context.Context, service string, pkg cluster.Package) error {
	objs, err := c.renderManifests(service, pkg)
	if err != nil {
		return err
	}
	for _, obj := range objs {
		c.prepare(service, obj)
		if err := c.apply(ctx, obj); err != nil {
			return fmt.Errorf("failed to apply %s %s: %w", obj.GetKind(), obj.GetName(), err)
		}
		logging.Debug("Kube", "Applied %s %s", obj.GetKind(), obj.GetName())
	}
	return nil
}

// Install implements cluster.Installer by applying the rendered manifests.
// The service's own rollout is awaited by the caller through the deploy plan.
func (c *Cluster) Install(ctx context.Context, service string, pkg cluster.Package) error {
	if err := c.applyAll(ctx, service, pkg); err != nil {
		return fmt.Errorf("failed to install %s: %w", pkg.Name, err)
	}
	logging.Info("Kube", "Installed %s %s as %s/%s", pkg.Name, pkg.Version, c.opts.Namespace, baseName(service))
	return nil
}

// Upgrade implements cluster.Installer by re-applying the manifests rendered
// for the new version.
func (c *Cluster) Upgrade(ctx context.Context, service string, pkg cluster.Package) error {
	if err := c.applyAll(ctx, service, pkg); err != nil {
		return fmt.Errorf("failed to upgrade %s to %s: %w", baseName(service), pkg.Version, err)
	}
	logging.Info("Kube", "Upgraded %s to %s", baseName(service), pkg.Version)
	return nil
}

// uninstall deletes the manifests in reverse order, then the remaining pods
// and volume claims of the service, and waits for the pods to be gone.
func (c *Cluster) uninstall(ctx context.Context, service string, pkg cluster.Package, timeout time.Duration) error {
	objs, err := c.renderManifests(service, pkg)
	if err != nil {
		return fmt.Errorf("failed to uninstall %s: %w", baseName(service), err)
	}
	for i := len(objs) - 1; i >= 0; i-- {
		obj := objs[i]
		c.prepare(service, obj)
		if err := c.client.Delete(ctx, obj); client.IgnoreNotFound(err) != nil {
			return fmt.Errorf("failed to delete %s %s: %w", obj.GetKind(), obj.GetName(), err)
		}
	}

	for _, kind := range []client.Object{&corev1.Pod{}, &corev1.PersistentVolumeClaim{}} {
		if err := c.client.DeleteAllOf(ctx, kind, client.InNamespace(c.opts.Namespace), c.selector(service)); client.IgnoreNotFound(err) != nil {
			return fmt.Errorf("failed to clean up %s: %w", baseName(service), err)
		}
	}

	err = wait.PollUntilContextTimeout(ctx, c.opts.PollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		pods, err := c.listPods(ctx, service)
		if err != nil {
			return false, nil
		}
		return len(pods) == 0, nil
	})
	if err != nil {
		return fmt.Errorf("%s still has pods %v after uninstall: %w", baseName(service), timeout, err)
	}
	logging.Info("Kube", "Uninstalled %s", baseName(service))
	return nil
}
