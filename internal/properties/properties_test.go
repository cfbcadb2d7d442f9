package properties

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hdfsSite = `<?xml version="1.0" encoding="UTF-8"?>
<configuration>
  <!-- generated -->
  <property>
    <name>dfs.namenode.shared.edits.dir</name>
    <value>qjournal://journal-0-node.hdfs.autoip.dcos.thisdcos.directory:8485;journal-1-node.hdfs.autoip.dcos.thisdcos.directory:8485/hdfs</value>
  </property>
  <property>
    <name>dfs.namenode.rpc-address.hdfs.name-0-node</name>
    <value>name-0-node.hdfs.autoip.dcos.thisdcos.directory:9001</value>
  </property>
  <property>
    <name>dfs.replication</name>
    <value>3</value>
  </property>
  <property>
    <name>dfs.empty</name>
    <value/>
  </property>
</configuration>`

func TestExtract(t *testing.T) {
	got, err := Extract([]byte(hdfsSite), []string{"dfs.replication", "dfs.empty", "dfs.missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"dfs.replication": "3",
		"dfs.empty":       "",
	}, got)
}

func TestExtract_OrderIndependentAndLastWins(t *testing.T) {
	doc := `<configuration>
<property><value>b</value><name>k</name></property>
<property><name>other</name><value>x</value></property>
<property><name>k</name><value>c</value></property>
</configuration>`
	got, err := Extract([]byte(doc), []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "c"}, got)
}

func TestExtract_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ""},
		{name: "unclosed", doc: "<configuration><property><name>a</name>"},
		{name: "mismatched", doc: "<configuration><property></configuration>"},
		{name: "nameless property", doc: "<configuration><property><value>1</value></property></configuration>"},
		{name: "trailing text", doc: "<configuration/>junk"},
		{name: "two roots", doc: "<configuration/><configuration/>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract([]byte(tt.doc), []string{"a"})
			require.Error(t, err)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "got %T", err)
		})
	}
}

func TestParseError_ReportsLine(t *testing.T) {
	_, err := Parse([]byte("<configuration>\n<property>\n</configuration>"))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Line)
	assert.Contains(t, err.Error(), "line 3")
}

func TestCheck(t *testing.T) {
	diff, err := Check([]byte(hdfsSite), map[string]string{
		"dfs.namenode.rpc-address.hdfs.name-0-node": AutoIPHost("hdfs", "name-0-node", 9001),
		"dfs.replication": "3",
	})
	require.NoError(t, err)
	assert.Empty(t, diff)

	diff, err = Check([]byte(hdfsSite), map[string]string{
		"dfs.replication": "2",
		"dfs.missing":     "x",
	})
	require.NoError(t, err)
	assert.Contains(t, diff, "dfs.replication")
	assert.Contains(t, diff, "dfs.missing")
}

func TestAutoIPHost(t *testing.T) {
	assert.Equal(t, "journal-0-node.hdfs.autoip.dcos.thisdcos.directory:8485", AutoIPHost("hdfs", "journal-0-node", 8485))
	assert.Equal(t, "name-1-node.testhdfs.autoip.dcos.thisdcos.directory:9002", AutoIPHost("/test/hdfs", "name-1-node", 9002))
}

func TestZKServicePath(t *testing.T) {
	assert.Equal(t, "hdfs", ZKServicePath("hdfs"))
	assert.Equal(t, "test__integration__hdfs", ZKServicePath("/test/integration/hdfs"))
}
