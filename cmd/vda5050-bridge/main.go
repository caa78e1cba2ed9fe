package main

import (
	"github.com/lakasli/TCP-VDA5050-bridge-server/cmd/vda5050-bridge/app"
)

func main() {
	app.NewApp().Run()
}
