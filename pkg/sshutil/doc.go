// Package sshutil lets file-backed DNS providers manage configuration on a
// remote host over SSH.
//
// It provides three pieces:
//
//   - [Client]: a single lazily dialed SSH connection with keepalives
//   - [SFTPFileSystem]: [FileSystem] over SFTP with atomic writes
//   - [SSHCommandRunner]: [CommandRunner] over SSH exec
//
// # Usage
//
//	config, err := sshutil.LoadConfigFromMap(settings, "SSH_")
//	if err != nil {
//		return err
//	}
//
//	client, err := sshutil.NewClient(config)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	fs := sshutil.NewSFTPFileSystem(client)
//	if err := fs.WriteFile("/etc/dnsmasq.d/ddnsweaver.conf", data, 0o644); err != nil {
//		return err
//	}
//
//	runner := sshutil.NewSSHCommandRunner(client)
//	if err := runner.Run(ctx, "systemctl reload dnsmasq"); err != nil {
//		return err
//	}
//
// # Host keys
//
// Exactly one policy must be configured: an OpenSSH known_hosts file
// (SSH_KNOWN_HOSTS), a pinned key fingerprint in ssh-keygen's SHA256 form
// (SSH_HOST_KEY_FINGERPRINT), or SSH_INSECURE_IGNORE_HOST_KEY=true.
package sshutil
