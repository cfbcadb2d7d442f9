package dcos

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"converge/pkg/logging"
)

var errNoRunner = errors.New("no ssh runner configured: set dcos.ssh.key_file")

// CommandRunner runs a shell command on a cluster host.
type CommandRunner interface {
	Run(ctx context.Context, host, command string) (string, error)
}

// DialFunc has the signature of ssh.Dial.
type DialFunc func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

// SSHOptions configures a SecureRunner.
type SSHOptions struct {
	User    string
	Port    int
	KeyFile string
	// KnownHostsFile enables host key verification. Empty accepts any host
	// key, which is only sensible on throwaway test clusters.
	KnownHostsFile string
	// Bastion is an optional jump host.
	Bastion string
	Timeout time.Duration
}

// SecureRunner runs commands over SSH, optionally through a bastion.
type SecureRunner struct {
	config   *ssh.ClientConfig
	port     int
	bastion  string
	DialFunc DialFunc
}

// NewSecureRunner loads the key material named in opts.
func NewSecureRunner(opts SSHOptions) (*SecureRunner, error) {
	if opts.User == "" {
		return nil, errors.New("ssh user is required")
	}
	key, err := os.ReadFile(opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh key %s: %w", opts.KeyFile, err)
	}

	hostKeys := ssh.InsecureIgnoreHostKey() //nolint:gosec // explicit opt-out when no known_hosts is configured
	if opts.KnownHostsFile != "" {
		hostKeys, err = knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	} else {
		logging.Warn("SSH", "no known_hosts configured, host keys are not verified")
	}

	port := opts.Port
	if port == 0 {
		port = 22
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &SecureRunner{
		config: &ssh.ClientConfig{
			User:            opts.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeys,
			Timeout:         timeout,
		},
		port:     port,
		bastion:  opts.Bastion,
		DialFunc: ssh.Dial,
	}, nil
}

func (r *SecureRunner) addr(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(r.port))
}

type sshConn struct {
	*ssh.Client
	jump *ssh.Client
}

func (c *sshConn) Close() error {
	err := c.Client.Close()
	if c.jump != nil {
		c.jump.Close()
	}
	return err
}

func (r *SecureRunner) dial(host string) (*sshConn, error) {
	target := r.addr(host)
	if r.bastion == "" {
		client, err := r.DialFunc("tcp", target, r.config)
		if err != nil {
			return nil, fmt.Errorf("ssh to %s: %w", target, err)
		}
		return &sshConn{Client: client}, nil
	}

	jump, err := r.DialFunc("tcp", r.addr(r.bastion), r.config)
	if err != nil {
		return nil, fmt.Errorf("ssh to bastion %s: %w", r.bastion, err)
	}
	conn, err := jump.Dial("tcp", target)
	if err != nil {
		jump.Close()
		return nil, fmt.Errorf("ssh via %s to %s: %w", r.bastion, target, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, target, r.config)
	if err != nil {
		jump.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", target, err)
	}
	return &sshConn{Client: ssh.NewClient(c, chans, reqs), jump: jump}, nil
}

// Run executes command on host and returns its combined output.
func (r *SecureRunner) Run(ctx context.Context, host, command string) (string, error) {
	conn, err := r.dial(host)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	session, err := conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session on %s: %w", host, err)
	}
	defer session.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	logging.Debug("SSH", "%s: %s", host, command)
	out, err := session.CombinedOutput(command)
	if ctx.Err() != nil {
		return string(out), ctx.Err()
	}
	return string(out), err
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// killCommand kills every process whose command line matches pattern. The
// first character is bracketed so the pattern does not match the remote
// shell running the command.
func killCommand(pattern string) string {
	if c := pattern[0]; c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
		pattern = "[" + pattern[:1] + "]" + pattern[1:]
	}
	return "sudo pkill -9 -f -- " + shellQuote(pattern)
}

// killProcess runs the kill pipeline on host. pkill exits 1 when nothing
// matched, which is reported as an error: the action would be a no-op.
func killProcess(ctx context.Context, runner CommandRunner, pattern, host string) error {
	if strings.TrimSpace(pattern) == "" {
		return errors.New("kill pattern must not be empty")
	}
	if host == "" {
		return errors.New("kill target has no host")
	}
	out, err := runner.Run(ctx, host, killCommand(pattern))
	if err != nil {
		var exit *ssh.ExitError
		if errors.As(err, &exit) && exit.ExitStatus() == 1 {
			return fmt.Errorf("no process matching %q on %s", pattern, host)
		}
		return fmt.Errorf("kill %q on %s: %w (output: %s)", pattern, host, err, strings.TrimSpace(out))
	}
	logging.Info("DCOS", "killed %q on %s", pattern, host)
	return nil
}
