/*
Package security manages the server's TLS material.

Deployments with a real certificate authority point the configuration at
their own key pair and CA bundle; the listeners load whatever the paths
name. What this package adds is the zero-configuration path:
EnsureServerCertificate generates a self-signed RSA key pair on first
boot when the configured files do not exist yet, so a fresh install can
serve TLS immediately.

The generated certificate is a plain server certificate (not a CA), valid
for one year, bound to the host name plus localhost and the loopback
addresses. It is never regenerated while both files exist - replacing it
with CA-issued material is just dropping the files in place and
restarting.
*/
package security
