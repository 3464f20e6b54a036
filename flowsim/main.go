// Command flowsim runs flow monitoring scenarios on a simulated network.
package main

import "github.com/sarchlab/flowsim/flowsim/cmd"

func main() {
	cmd.Execute()
}
