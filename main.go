package main

import (
	"math/rand"
	"runtime"
	"time"

	"github.com/rawburt/chatd/cmd"
)

func main() {
	rand.Seed(time.Now().UnixNano())

	runtime.GOMAXPROCS(runtime.NumCPU())

	cmd.Execute()
}
