//	@title			EasyShare API
//	@version		1.0
//	@description	Ephemeral file sharing: upload a batch, share one link, files expire after the retention window.
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Admin JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
