package dcos

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

const (
	installRequestType    = "application/vnd.dcos.package.install-request+json;charset=utf-8;version=v1"
	installResponseType   = "application/vnd.dcos.package.install-response+json;charset=utf-8;version=v2"
	uninstallRequestType  = "application/vnd.dcos.package.uninstall-request+json;charset=utf-8;version=v1"
	uninstallResponseType = "application/vnd.dcos.package.uninstall-response+json;charset=utf-8;version=v1"
	updateRequestType     = "application/vnd.dcos.service.update-request+json;charset=utf-8;version=v1"
	updateResponseType    = "application/vnd.dcos.service.update-response+json;charset=utf-8;version=v1"
)

type installRequest struct {
	PackageName    string                 `json:"packageName"`
	PackageVersion string                 `json:"packageVersion,omitempty"`
	Options        map[string]interface{} `json:"options,omitempty"`
	AppID          string                 `json:"appId,omitempty"`
}

type uninstallRequest struct {
	PackageName string `json:"packageName"`
	AppID       string `json:"appId,omitempty"`
}

type updateRequest struct {
	AppID          string                 `json:"appId"`
	PackageVersion string                 `json:"packageVersion,omitempty"`
	Options        map[string]interface{} `json:"options,omitempty"`
	Replace        bool                   `json:"replace"`
}

// Install submits a package install to Cosmos. It returns once the
// scheduler app is created; the service's own deployment is awaited by the
// caller.
func (c *Client) Install(ctx context.Context, service string, pkg cluster.Package) error {
	_, _, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/package/install",
		body:        installRequest{PackageName: pkg.Name, PackageVersion: pkg.Version, Options: pkg.Options, AppID: appID(service)},
		contentType: installRequestType,
		accept:      installResponseType,
	})
	if err != nil {
		return fmt.Errorf("failed to install %s: %w", pkg.Name, err)
	}
	logging.Info("DCOS", "installed %s %s as %s", pkg.Name, pkg.Version, appID(service))
	return nil
}

// Upgrade updates an installed service to pkg.Version, merging options.
func (c *Client) Upgrade(ctx context.Context, service string, pkg cluster.Package) error {
	_, _, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/cosmos/service/update",
		body:        updateRequest{AppID: appID(service), PackageVersion: pkg.Version, Options: pkg.Options},
		contentType: updateRequestType,
		accept:      updateResponseType,
	})
	if err != nil {
		return fmt.Errorf("failed to upgrade %s to %s: %w", appID(service), pkg.Version, err)
	}
	logging.Info("DCOS", "upgraded %s to %s", appID(service), pkg.Version)
	return nil
}

// uninstall removes the package and waits for the scheduler app to be
// gone, which the SDK only allows after its uninstall plan has run.
func (c *Client) uninstall(ctx context.Context, service string, pkg cluster.Package, timeout time.Duration) error {
	_, _, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/package/uninstall",
		body:        uninstallRequest{PackageName: pkg.Name, AppID: appID(service)},
		contentType: uninstallRequestType,
		accept:      uninstallResponseType,
	})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to uninstall %s: %w", appID(service), err)
	}

	err = wait.PollUntilContextTimeout(ctx, 5*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		_, err := c.marathonApp(ctx, service)
		if IsNotFound(err) {
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("%s still present %v after uninstall: %w", appID(service), timeout, err)
	}
	logging.Info("DCOS", "uninstalled %s", appID(service))
	return nil
}
