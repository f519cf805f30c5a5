// main is the entrypoint of the subpulse CLI.
package main

import (
	"github.com/huangsam/subpulse/cmd"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/iocache"
)

func main() {
	cmd.SetCacheManager(iocache.Manager)

	err := cmd.Execute()
	if stopErr := cmd.StopProfiling(); stopErr != nil {
		contract.LogWarn("Cannot stop profiling", stopErr)
	}
	iocache.CloseCaching()
	if err != nil {
		contract.LogFatal("Cannot run subpulse", err)
	}
}
