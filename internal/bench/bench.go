// Package bench implements remote control of a physical test bench over
// SSH (D2): power-cycling the ECU under test between scenario runs and
// pulling bench-side log files down afterward. This is optional tooling
// the `bench` CLI subcommand exercises; the core server (C1-C11) and
// client (C12) never import it.
//
// Grounded on the teacher's internal/transport/ssh.go: an ssh.Client
// built from key/agent/password auth with a known_hosts callback,
// lazily-created sftp.Client for file transfer, and a background
// keep-alive goroutine. Narrowed from the teacher's full Transport
// interface (Exec/ExecStream/Put/Get/Mkdir/Stat/Remove, Windows
// elevation handling) to the two operations a bench scenario actually
// needs: Reset and PullLogs.
package bench

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Options configures the SSH connection to the bench host.
type Options struct {
	Host               string
	Port               int // defaults to 22
	User               string
	KeyFile            string // path to a private key file
	KeyPassphrase      string
	Password           string
	UseAgent           bool
	KnownHostsFile     string
	InsecureIgnoreHost bool
	ConnectTimeout     time.Duration // defaults to 30s
	KeepAlive          time.Duration // 0 disables keep-alive
	ResetCommand       string        // remote command run by Reset, e.g. a relay power-cycle script
}

// Controller drives a bench host: resetting the ECU under test between
// scenario runs and retrieving bench-side logs afterward.
type Controller struct {
	opts   Options
	client *ssh.Client
	sftp   *sftp.Client
}

// New returns a Controller for the given options. The SSH connection is
// established lazily on first use.
func New(opts Options) (*Controller, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("bench: host is required")
	}
	return &Controller{opts: opts}, nil
}

func (c *Controller) connect() error {
	if c.client != nil {
		return nil
	}

	config, err := c.buildClientConfig()
	if err != nil {
		return fmt.Errorf("bench: build ssh config: %w", err)
	}

	port := c.opts.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(port))

	timeout := c.opts.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("bench: dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("bench: ssh handshake with %s: %w", addr, err)
	}
	c.client = ssh.NewClient(sshConn, chans, reqs)

	if c.opts.KeepAlive > 0 {
		go c.keepAlive()
	}
	return nil
}

func (c *Controller) buildClientConfig() (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod

	if c.opts.UseAgent {
		if auth := agentAuth(); auth != nil {
			methods = append(methods, auth)
		}
	}
	if c.opts.KeyFile != "" {
		auth, err := publicKeyAuth(c.opts.KeyFile, c.opts.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("key file auth: %w", err)
		}
		methods = append(methods, auth)
	}
	if c.opts.Password != "" {
		methods = append(methods, ssh.Password(c.opts.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication method configured")
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	user := c.opts.User
	if user == "" {
		user = os.Getenv("USER")
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.ConnectTimeout,
	}, nil
}

func (c *Controller) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.opts.InsecureIgnoreHost {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if c.opts.KnownHostsFile != "" {
		return knownhosts.New(c.opts.KnownHostsFile)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".ssh", "known_hosts")
		if _, err := os.Stat(path); err == nil {
			return knownhosts.New(path)
		}
	}
	return nil, fmt.Errorf("no known_hosts file available and InsecureIgnoreHost not set")
}

func (c *Controller) keepAlive() {
	ticker := time.NewTicker(c.opts.KeepAlive)
	defer ticker.Stop()
	for range ticker.C {
		if c.client == nil {
			return
		}
		if _, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			return
		}
	}
}

func (c *Controller) getSFTP() (*sftp.Client, error) {
	if c.sftp != nil {
		return c.sftp, nil
	}
	if c.client == nil {
		return nil, fmt.Errorf("bench: not connected")
	}
	client, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, fmt.Errorf("bench: create sftp client: %w", err)
	}
	c.sftp = client
	return c.sftp, nil
}

// Reset runs the configured ResetCommand over an SSH session, typically
// a relay-controlled power cycle of the ECU under test. It blocks until
// the command exits, ctx is cancelled, or the session errors.
func (c *Controller) Reset(ctx context.Context) error {
	if c.opts.ResetCommand == "" {
		return fmt.Errorf("bench: no reset command configured")
	}
	if err := c.connect(); err != nil {
		return err
	}

	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("bench: new session: %w", err)
	}
	defer session.Close()

	done := make(chan error, 1)
	go func() { done <- session.Run(c.opts.ResetCommand) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return ctx.Err()
	case err := <-done:
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return fmt.Errorf("bench: reset command exited %d", exitErr.ExitStatus())
		}
		return err
	}
}

// PullLogs downloads every regular file directly under remoteDir into
// localDir via SFTP, preserving filenames but not subdirectories.
func (c *Controller) PullLogs(ctx context.Context, remoteDir, localDir string) error {
	if err := c.connect(); err != nil {
		return err
	}
	client, err := c.getSFTP()
	if err != nil {
		return err
	}

	entries, err := client.ReadDir(remoteDir)
	if err != nil {
		return fmt.Errorf("bench: list %s: %w", remoteDir, err)
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return fmt.Errorf("bench: create %s: %w", localDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		remotePath := remoteDir + "/" + entry.Name()
		localPath := filepath.Join(localDir, entry.Name())
		if err := pullFile(client, remotePath, localPath); err != nil {
			return fmt.Errorf("bench: pull %s: %w", remotePath, err)
		}
	}
	return nil
}

func pullFile(client *sftp.Client, remotePath, localPath string) error {
	remote, err := client.Open(remotePath)
	if err != nil {
		return err
	}
	defer remote.Close()

	local, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	if _, err := remote.WriteTo(local); err != nil {
		return err
	}
	return local.Sync()
}

// Close releases the SFTP and SSH connections, if open.
func (c *Controller) Close() error {
	var errs []string
	if c.sftp != nil {
		if err := c.sftp.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		c.sftp = nil
	}
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		c.client = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("bench: close: %s", strings.Join(errs, "; "))
	}
	return nil
}

func agentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}
	client := agent.NewClient(conn)
	return ssh.PublicKeysCallback(client.Signers)
}

func publicKeyAuth(keyPath, passphrase string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}
