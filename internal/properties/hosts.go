package properties

import (
	"fmt"
	"strings"
)

const autoIPDomain = "autoip.dcos.thisdcos.directory"

func safeName(name string) string {
	return strings.ReplaceAll(name, "/", "")
}

// AutoIPHost returns the host:port a task of service is reachable at through
// DC/OS auto-IP DNS. Slashes in foldered names are dropped.
func AutoIPHost(service, task string, port int) string {
	return fmt.Sprintf("%s.%s.%s:%d", safeName(task), safeName(service), autoIPDomain, port)
}

// ZKServicePath returns the ZooKeeper node name a foldered service registers
// under, without the "dcos-service-" prefix: "/test/hdfs" -> "test__hdfs".
func ZKServicePath(service string) string {
	return strings.ReplaceAll(strings.TrimPrefix(service, "/"), "/", "__")
}
