package main

import (
	"fmt"
	"net/http"
	"time"
)

// reloadTimeout is generous: the call blocks while the instance
// downloads and imports a full bulk snapshot.
const reloadTimeout = 30 * time.Minute

type cmdReload struct {
	endpointConfig
}

func (cmd cmdReload) Execute(_ []string) error {
	fmt.Println("requesting bulk data reload (this may take several minutes)...")

	var message string
	if err := cmd.call(http.MethodPost, "/admin/reload", reloadTimeout, &message); err != nil {
		fmt.Println(red("reload failed"))
		return err
	}
	fmt.Println(green(message))
	return nil
}
