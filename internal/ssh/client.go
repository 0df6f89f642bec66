package ssh

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

// RemoteBinary is the cappit executable expected on the challenge host
const RemoteBinary = "cappit"

// Options configures a connection to the challenge host
type Options struct {
	User string
	Host string
	// KeyPath defaults to ~/.ssh/id_rsa, then ~/.ssh/id_ed25519.
	KeyPath string
}

// Client represents an SSH client
type Client struct {
	Host   string
	User   string
	client *ssh.Client
}

// NewClient creates a new SSH client
func NewClient(opts Options) (*Client, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.SSHError("failed to get home directory", err)
	}

	signer, err := loadSigner(home, opts.KeyPath)
	if err != nil {
		return nil, err
	}

	knownHostsPath := filepath.Join(home, ".ssh", "known_hosts")
	hostKeyCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		logging.Log.WithError(err).Warn("known_hosts unavailable, host key not verified")
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User: opts.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
	}

	client, err := ssh.Dial("tcp", hostPort(opts.Host), config)
	if err != nil {
		return nil, errors.SSHError(fmt.Sprintf("failed to connect to %s@%s", opts.User, opts.Host), err)
	}

	return &Client{
		Host:   opts.Host,
		User:   opts.User,
		client: client,
	}, nil
}

// loadSigner reads keyPath, or the default keys under home when keyPath is empty
func loadSigner(home, keyPath string) (ssh.Signer, error) {
	candidates := []string{keyPath}
	if keyPath == "" {
		candidates = []string{
			filepath.Join(home, ".ssh", "id_rsa"),
			filepath.Join(home, ".ssh", "id_ed25519"),
		}
	}

	var lastErr error
	for _, path := range candidates {
		key, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.SSHError(fmt.Sprintf("failed to parse private key %s", path), err)
		}
		return signer, nil
	}

	return nil, errors.SSHError("failed to read SSH key", lastErr)
}

// hostPort appends the default SSH port when host has none
func hostPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "22")
}

// Close closes the SSH connection
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Execute runs a command and returns the output
func (c *Client) Execute(command string) (string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", errors.SSHError("failed to create session", err)
	}
	defer func() { _ = session.Close() }()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	if err := session.Run(command); err != nil {
		return "", errors.SSHError("failed to execute command", err)
	}

	return stdout.String(), nil
}

// ExecuteInteractive runs a command and streams output. A PTY is requested
// when out is a terminal so the remote side keeps its colors.
func (c *Client) ExecuteInteractive(command string, out, errOut io.Writer) error {
	session, err := c.client.NewSession()
	if err != nil {
		return errors.SSHError("failed to create session", err)
	}
	defer func() { _ = session.Close() }()

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		width, height, err := term.GetSize(int(f.Fd()))
		if err != nil {
			width, height = 80, 24
		}
		modes := ssh.TerminalModes{ssh.ECHO: 0}
		if err := session.RequestPty(os.Getenv("TERM"), height, width, modes); err != nil {
			logging.Log.WithError(err).Debug("pty request refused")
		}
	}

	session.Stdout = out
	session.Stderr = errOut

	if err := session.Run(command); err != nil {
		return errors.SSHError("remote command failed", err)
	}

	return nil
}

// CheckInstalled checks if cappit is installed on the remote host
func (c *Client) CheckInstalled() (bool, error) {
	output, err := c.Execute("command -v " + RemoteBinary)
	if err != nil {
		return false, nil
	}

	return strings.TrimSpace(output) != "", nil
}

// RemoteCommand builds the shell command that runs cappit with args in dir.
// dir is left unquoted so the remote shell expands ~.
func RemoteCommand(dir string, args []string) string {
	cmd := RemoteBinary
	if len(args) > 0 {
		cmd += " " + shellquote.Join(args...)
	}
	if dir == "" {
		return cmd
	}
	return fmt.Sprintf("cd %s && %s", dir, cmd)
}
