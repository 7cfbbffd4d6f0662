package cmd

import (
	"fmt"
)

const banner = `
   __                _
  / _|_ __  ___ (_)_ __ ___
 | |_| '_ \/ __|| | '_ ` + "`" + ` _ \
 |  _| |_) \__ \| | | | | | |
 |_| | .__/|___/|_|_| |_| |_|
     |_|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Simulated Fingerprint Sensor - Version %s\x1b[0m\n\n", Version)
}
