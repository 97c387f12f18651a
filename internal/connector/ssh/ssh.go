// Package ssh provides a connection backed by golang.org/x/crypto/ssh.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"github.com/pacoguzman/vx-common-spawn/internal/connector"
)

const (
	defaultPort     = 22
	defaultTermType = "xterm"
	defaultCols     = 80
	defaultRows     = 24
)

// Config holds SSH specific connection settings.
type Config struct {
	connector.Config

	// IdentityFile is a private key used for public key authentication.
	IdentityFile string

	// Password enables password authentication when set.
	Password string

	// KnownHostsFile enables host key verification. Without it host keys are not checked.
	KnownHostsFile string

	// TermType is the terminal type sent with pty requests.
	TermType string
}

// Connection drives channels over a single SSH client.
type Connection struct {
	*connector.Queue

	client   *ssh.Client
	termType string

	// agentConn is the SSH_AUTH_SOCK connection, kept open for the lifetime of the client.
	agentConn net.Conn
}

// Dial establishes an SSH connection.
func Dial(ctx context.Context, cfg Config) (*Connection, error) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	clientConfig, agentConn, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}
	closeAgent := func() {
		if agentConn != nil {
			agentConn.Close()
		}
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		closeAgent()
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.Address(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, cfg.Address(), clientConfig)
	if err != nil {
		netConn.Close()
		closeAgent()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", cfg.Address(), err)
	}

	c := NewConnection(ssh.NewClient(sshConn, chans, reqs))
	c.agentConn = agentConn
	if cfg.TermType != "" {
		c.termType = cfg.TermType
	}
	return c, nil
}

// NewConnection wraps an already established client.
func NewConnection(client *ssh.Client) *Connection {
	return &Connection{
		Queue:    connector.NewQueue(connector.DefaultQueueSize),
		client:   client,
		termType: defaultTermType,
	}
}

// clientConfig builds the client configuration. The returned agent connection, when not nil,
// must be closed by the caller once the client is done with it.
func clientConfig(cfg Config) (*ssh.ClientConfig, net.Conn, error) {
	var auth []ssh.AuthMethod

	if cfg.IdentityFile != "" {
		key, err := os.ReadFile(cfg.IdentityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse identity file %s: %w", cfg.IdentityFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	var agentConn net.Conn
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			agentConn = conn
			auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	fail := func(err error) (*ssh.ClientConfig, net.Conn, error) {
		if agentConn != nil {
			agentConn.Close()
		}
		return nil, nil, err
	}

	if len(auth) == 0 {
		return fail(errors.New("no ssh authentication method configured"))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return fail(fmt.Errorf("failed to load known hosts: %w", err))
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}, agentConn, nil
}

// OpenChannel opens a new session channel.
func (c *Connection) OpenChannel(ctx context.Context) (connector.Channel, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	return &Channel{Endpoint: c.NewEndpoint(), conn: c, session: session}, nil
}

// Close terminates the SSH connection and releases the agent connection.
func (c *Connection) Close() error {
	err := c.client.Close()
	if c.agentConn != nil {
		if aerr := c.agentConn.Close(); err == nil {
			err = aerr
		}
		c.agentConn = nil
	}
	return err
}

// String returns a description of the connection.
func (c *Connection) String() string {
	return fmt.Sprintf("ssh://%s@%s", c.client.User(), c.client.RemoteAddr())
}

// Channel is one SSH session channel.
type Channel struct {
	*connector.Endpoint

	conn    *Connection
	session *ssh.Session
}

// RequestPTY sends a pty-req sized to the local terminal when there is one.
func (ch *Channel) RequestPTY(ctx context.Context) error {
	cols, rows := defaultCols, defaultRows
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			cols, rows = w, h
		}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	return ch.session.RequestPty(ch.conn.termType, rows, cols, modes)
}

// Exec sends the exec request. A rejected request closes the channel.
func (ch *Channel) Exec(ctx context.Context, command string) error {
	stdout, err := ch.session.StdoutPipe()
	if err != nil {
		ch.fail()
		return fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := ch.session.StderrPipe()
	if err != nil {
		ch.fail()
		return fmt.Errorf("failed to attach stderr: %w", err)
	}

	if err := ch.session.Start(command); err != nil {
		ch.fail()
		return err
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go ch.Pump(&readers, connector.StreamStdout, stdout)
	go ch.Pump(&readers, connector.StreamStderr, stderr)

	go func() {
		readers.Wait()
		if code, ok := exitStatus(ch.session.Wait()); ok {
			ch.Push(connector.ExitStatusEvent{Code: code})
		}
		ch.End()
	}()

	return nil
}

// Close closes the session and stops event delivery.
func (ch *Channel) Close() error {
	if !ch.Stop() {
		return nil
	}
	err := ch.session.Close()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (ch *Channel) fail() {
	_ = ch.session.Close()
	go ch.End()
}

// exitStatus returns the status the remote attached with exit-status. x/crypto/ssh reports
// 128+signal for a session ended by exit-signal; that is not a remote status.
func exitStatus(err error) (int, bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) && exitErr.Signal() == "" {
		return exitErr.ExitStatus(), true
	}
	return 0, false
}

// Ensure Connection implements the connector.Connection interface.
var _ connector.Connection = (*Connection)(nil)
