package kernelroute

import "context"

// NoopInstaller discards every route operation. Used in tests and on
// platforms/containers where the daemon runs without CAP_NET_ADMIN
// and kernel route installation is not expected to succeed (or
// matter, e.g. when the streaming/routing logic is exercised without
// actually wanting application traffic rerouted).
type NoopInstaller struct{}

func (NoopInstaller) Install(context.Context, Route) error   { return nil }
func (NoopInstaller) Delete(context.Context, uint8) error    { return nil }
func (NoopInstaller) Flush(context.Context) error            { return nil }

var _ Installer = NoopInstaller{}
