// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package main

import (
	"github.com/leifkb/redis-luamodules/luamodules/cmd"
)

func main() {
	cmd.Execute()
}
