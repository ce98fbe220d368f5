package main

import "github.com/spencerau/NeRF-to-3DPrint/cmd"

func main() {
	cmd.Execute()
}
