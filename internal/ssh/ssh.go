package ssh

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"tablesync/internal/connection"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/ssh"
)

// ViaSSHDialer opens database connections through an SSH client.
// It satisfies pq.Dialer and can back a pgx DialFunc.
type ViaSSHDialer struct {
	sshClient *ssh.Client
}

func (d *ViaSSHDialer) Dial(network, addr string) (net.Conn, error) {
	return d.sshClient.Dial("tcp", addr)
}

func (d *ViaSSHDialer) DialTimeout(network, addr string, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return d.DialContext(ctx, network, addr)
}

func (d *ViaSSHDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return d.sshClient.DialContext(ctx, "tcp", addr)
}

// Close tears down the SSH client and every tunnel opened through it.
func (d *ViaSSHDialer) Close() error {
	if d.sshClient == nil {
		return nil
	}
	return d.sshClient.Close()
}

// connectSSH establishes an SSH connection
func connectSSH(config connection.SSHConfig) (*ssh.Client, error) {
	authMethods := []ssh.AuthMethod{}

	if config.KeyPath != "" {
		key, err := os.ReadFile(config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("读取 SSH 私钥失败：%w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("解析 SSH 私钥失败：%w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if config.Password != "" {
		authMethods = append(authMethods, ssh.Password(config.Password))
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // Use strict checking in production!
		Timeout:         5 * time.Second,
	}

	addr := net.JoinHostPort(config.Host, fmt.Sprintf("%d", config.Port))
	return ssh.Dial("tcp", addr, sshConfig)
}

// NewDialer connects to the SSH host and returns a dialer tunnelling through it.
func NewDialer(config connection.SSHConfig) (*ViaSSHDialer, error) {
	client, err := connectSSH(config)
	if err != nil {
		return nil, err
	}
	return &ViaSSHDialer{sshClient: client}, nil
}

// RegisterSSHNetwork registers a unique MySQL network name for a specific SSH tunnel.
// Returns the network name to use in the DSN and the dialer to close with the pool.
func RegisterSSHNetwork(sshConfig connection.SSHConfig) (string, *ViaSSHDialer, error) {
	dialer, err := NewDialer(sshConfig)
	if err != nil {
		return "", nil, err
	}

	netName := fmt.Sprintf("ssh_%s_%d", sshConfig.Host, time.Now().UnixNano())
	mysql.RegisterDialContext(netName, func(ctx context.Context, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp", addr)
	})

	return netName, dialer, nil
}
