package dcos

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sshServer is a minimal exec-only SSH server. Commands exit with the status
// set in exit; "direct-tcpip" channels are proxied so it can act as a bastion.
type sshServer struct {
	addr    string
	hostKey ssh.PublicKey

	mu       sync.Mutex
	commands []string
	exit     uint32
}

func startSSHServer(t *testing.T, clientKey ssh.PublicKey) *sshServer {
	t.Helper()
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if string(key.Marshal()) == string(clientKey.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown key")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	s := &sshServer{addr: ln.Addr().String(), hostKey: hostSigner.PublicKey()}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn, cfg)
		}
	}()
	return s
}

func (s *sshServer) serve(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		switch nc.ChannelType() {
		case "session":
			go s.session(nc)
		case "direct-tcpip":
			go s.forward(nc)
		default:
			nc.Reject(ssh.UnknownChannelType, "unsupported")
		}
	}
}

func (s *sshServer) session(nc ssh.NewChannel) {
	ch, reqs, err := nc.Accept()
	if err != nil {
		return
	}
	defer ch.Close()
	for req := range reqs {
		if req.Type != "exec" {
			req.Reply(false, nil)
			continue
		}
		n := binary.BigEndian.Uint32(req.Payload)
		cmd := string(req.Payload[4 : 4+n])
		req.Reply(true, nil)

		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		status := s.exit
		s.mu.Unlock()

		fmt.Fprintf(ch, "ran %s\n", cmd)
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, status)
		ch.SendRequest("exit-status", false, payload)
		return
	}
}

func (s *sshServer) forward(nc ssh.NewChannel) {
	var target struct {
		Host       string
		Port       uint32
		OriginHost string
		OriginPort uint32
	}
	if err := ssh.Unmarshal(nc.ExtraData(), &target); err != nil {
		nc.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	upstream, err := net.Dial("tcp", net.JoinHostPort(target.Host, fmt.Sprint(target.Port)))
	if err != nil {
		nc.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	ch, reqs, err := nc.Accept()
	if err != nil {
		upstream.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	go func() {
		defer ch.Close()
		io.Copy(ch, upstream)
	}()
	io.Copy(upstream, ch)
	upstream.Close()
}

func (s *sshServer) ran() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// writeKeys writes a client private key and a known_hosts file trusting the
// given servers.
func writeKeys(t *testing.T, priv ed25519.PrivateKey, servers ...*sshServer) (keyFile, knownHostsFile string) {
	t.Helper()
	dir := t.TempDir()

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	keyFile = filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(block), 0600))

	var lines string
	for _, s := range servers {
		lines += knownhosts.Line([]string{s.addr}, s.hostKey) + "\n"
	}
	knownHostsFile = filepath.Join(dir, "known_hosts")
	require.NoError(t, os.WriteFile(knownHostsFile, []byte(lines), 0600))
	return keyFile, knownHostsFile
}

func clientKey(t *testing.T) (ed25519.PrivateKey, ssh.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return priv, sshPub
}

func TestSecureRunner_Direct(t *testing.T) {
	priv, pub := clientKey(t)
	agent := startSSHServer(t, pub)
	keyFile, known := writeKeys(t, priv, agent)

	runner, err := NewSecureRunner(SSHOptions{User: "core", KeyFile: keyFile, KnownHostsFile: known})
	require.NoError(t, err)

	require.NoError(t, killProcess(context.Background(), runner, "journalnode", agent.addr))
	assert.Equal(t, []string{"sudo pkill -9 -f -- '[j]ournalnode'"}, agent.ran())
}

func TestSecureRunner_NothingMatched(t *testing.T) {
	priv, pub := clientKey(t)
	agent := startSSHServer(t, pub)
	agent.exit = 1
	keyFile, known := writeKeys(t, priv, agent)

	runner, err := NewSecureRunner(SSHOptions{User: "core", KeyFile: keyFile, KnownHostsFile: known})
	require.NoError(t, err)

	err = killProcess(context.Background(), runner, "namenode", agent.addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no process matching "namenode"`)
}

func TestSecureRunner_ThroughBastion(t *testing.T) {
	priv, pub := clientKey(t)
	agent := startSSHServer(t, pub)
	bastion := startSSHServer(t, pub)
	keyFile, known := writeKeys(t, priv, agent, bastion)

	runner, err := NewSecureRunner(SSHOptions{User: "core", KeyFile: keyFile, KnownHostsFile: known, Bastion: bastion.addr})
	require.NoError(t, err)

	out, err := runner.Run(context.Background(), agent.addr, "uptime")
	require.NoError(t, err)
	assert.Equal(t, "ran uptime\n", out)
	assert.Equal(t, []string{"uptime"}, agent.ran())
	assert.Empty(t, bastion.ran())
}

func TestSecureRunner_UnknownHostKeyRejected(t *testing.T) {
	priv, pub := clientKey(t)
	agent := startSSHServer(t, pub)
	other := startSSHServer(t, pub)
	keyFile, known := writeKeys(t, priv, other)

	runner, err := NewSecureRunner(SSHOptions{User: "core", KeyFile: keyFile, KnownHostsFile: known})
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), agent.addr, "uptime")
	assert.Error(t, err)
}

func TestNewSecureRunner_Errors(t *testing.T) {
	_, err := NewSecureRunner(SSHOptions{KeyFile: "x"})
	assert.Error(t, err)

	_, err = NewSecureRunner(SSHOptions{User: "core", KeyFile: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad")
	require.NoError(t, os.WriteFile(bad, []byte("not a key"), 0600))
	_, err = NewSecureRunner(SSHOptions{User: "core", KeyFile: bad})
	assert.Error(t, err)
}
