package root

import (
	tenantcmd "github.com/quarrylane/lamina/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(tenantcmd.Command())
}
