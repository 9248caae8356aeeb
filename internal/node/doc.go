// Package node implements the lifecycle operations of an installed
// ov-node: first-time installation (OpenVPN, .env, systemd unit), update
// of an existing checkout, and uninstallation.
//
// These are the operations installer.py offers from its menu. They run
// against an install directory previously prepared by the bootstrap.
package node
