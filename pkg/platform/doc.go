// Package platform holds the node-level collaborators the convergence
// executor drives: the OS package manager, the template renderer and the
// init system.
//
// Package and service managers shell out through a shell.Runner and probe
// before they act, so Ensure and SetState report changed=false when the
// node already matches. Apt and Yum cover the debian and rhel families;
// Systemd, Upstart and SysV cover the supported init styles.
//
// The renderer executes text/template files embedded from templates/. An
// override directory can replace any of them by name.
package platform
